package animan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.uber.org/zap"

	"github.com/bounan/matcher/logutils"
	"github.com/bounan/matcher/types"
)

var (
	ErrAniManFailed            = errors.New("animan lambda returned an error")
	ErrAniManFailedToUnmarshal = errors.New("failed to unmarshal the animan response")
)

// Client talks to the AniMan lambdas: the source of videos to match
// and the sink for matched scenes.
type Client struct {
	lambda *lambda.Client

	getSeriesToMatchName  string
	updateVideoScenesName string
}

func New(cfg aws.Config, getSeriesToMatchName, updateVideoScenesName string) *Client {
	return &Client{
		lambda: lambda.NewFromConfig(cfg),

		getSeriesToMatchName:  getSeriesToMatchName,
		updateVideoScenesName: updateVideoScenesName,
	}
}

// GetVideosToMatch asks AniMan for the current batch of registered but
// not yet matched videos.
func (c *Client) GetVideosToMatch(ctx context.Context) (*types.MatcherResponse, error) {
	res, err := c.lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(c.getSeriesToMatchName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
	})
	if err != nil {
		return nil, err
	}
	if res.FunctionError != nil {
		return nil, fmt.Errorf("%w: %s: %s",
			ErrAniManFailed, c.getSeriesToMatchName, *res.FunctionError,
		)
	}

	var response types.MatcherResponse
	if err := json.Unmarshal(res.Payload, &response); err != nil {
		return nil, fmt.Errorf("%w: %w",
			ErrAniManFailedToUnmarshal, err,
		)
	}

	return &response, nil
}

// UpdateVideoScenes uploads the matching results.
func (c *Client) UpdateVideoScenes(ctx context.Context, request *types.MatcherResultRequest) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return err
	}

	res, err := c.lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(c.updateVideoScenesName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return err
	}
	if res.FunctionError != nil {
		return fmt.Errorf("%w: %s: %s",
			ErrAniManFailed, c.updateVideoScenesName, *res.FunctionError,
		)
	}

	return nil
}

// UploadEmptyScenes reports the videos as matched with no scenes, so
// they are not handed out again.
func (c *Client) UploadEmptyScenes(ctx context.Context, keys []types.VideoKey) error {
	l := logutils.LoggerFromContext(ctx)
	l.Info("Uploading empty scenes",
		zap.Stringers("videos", keys),
	)

	items := make([]types.MatcherResultRequestItem, 0, len(keys))
	for _, key := range keys {
		items = append(items, types.MatcherResultRequestItem{
			VideoKey: key,
			Scenes:   nil,
		})
	}

	return c.UpdateVideoScenes(ctx, &types.MatcherResultRequest{Items: items})
}
