package params

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const timeout = 5 * time.Second

var (
	ErrParameterEmpty = errors.New("no parameter or parameter is empty")
)

// Fetch reads a single parameter from AWS SSM parameter store.
func Fetch(name string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", err
	}

	cli := ssm.NewFromConfig(cfg)

	res, err := cli.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if res.Parameter == nil || res.Parameter.Value == nil || len(*res.Parameter.Value) == 0 {
		return "", fmt.Errorf("%w: %s", ErrParameterEmpty, name)
	}

	return *res.Parameter.Value, nil
}
