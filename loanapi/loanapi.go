package loanapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/bounan/matcher/types"
)

var (
	ErrLoanApiFailed            = errors.New("loan api lambda returned an error")
	ErrLoanApiFailedToUnmarshal = errors.New("failed to unmarshal the loan api response")
)

type getEpisodesRequest struct {
	MyAnimeListID int    `json:"myAnimeListId"`
	Dub           string `json:"dub"`
}

type getVideoRequest struct {
	MyAnimeListID int    `json:"myAnimeListId"`
	Dub           string `json:"dub"`
	Episode       int    `json:"episode"`
}

// VideoResponse describes one episode: playlist URL per quality plus
// an optional thumbnail.
type VideoResponse struct {
	Playlists    map[string]string `json:"playlists"`
	ThumbnailURL *string           `json:"thumbnailUrl"`
}

// Client talks to the LoanAPI lambda that fronts the video CDN.
type Client struct {
	lambda      *lambda.Client
	functionArn string
}

func New(cfg aws.Config, functionArn string) *Client {
	return &Client{
		lambda:      lambda.NewFromConfig(cfg),
		functionArn: functionArn,
	}
}

// GetEpisodes lists the episode numbers available for a title.
func (c *Client) GetEpisodes(ctx context.Context, myAnimeListID int, dub string) ([]int, error) {
	var episodes []int
	err := c.invoke(ctx, &getEpisodesRequest{
		MyAnimeListID: myAnimeListID,
		Dub:           dub,
	}, &episodes)
	if err != nil {
		return nil, err
	}
	return episodes, nil
}

// GetVideo returns the playlists of a single episode.
func (c *Client) GetVideo(ctx context.Context, key types.VideoKey) (*VideoResponse, error) {
	var video VideoResponse
	err := c.invoke(ctx, &getVideoRequest{
		MyAnimeListID: key.MyAnimeListID,
		Dub:           key.Dub,
		Episode:       key.Episode,
	}, &video)
	if err != nil {
		return nil, err
	}
	return &video, nil
}

func (c *Client) invoke(ctx context.Context, request any, response any) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return err
	}

	res, err := c.lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(c.functionArn),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return err
	}
	if res.FunctionError != nil {
		return fmt.Errorf("%w: %s",
			ErrLoanApiFailed, *res.FunctionError,
		)
	}

	if err := json.Unmarshal(res.Payload, response); err != nil {
		return fmt.Errorf("%w: %w",
			ErrLoanApiFailedToUnmarshal, err,
		)
	}

	return nil
}
