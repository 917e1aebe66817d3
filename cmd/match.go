package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/bounan/matcher/animan"
	"github.com/bounan/matcher/audio"
	"github.com/bounan/matcher/config"
	"github.com/bounan/matcher/loanapi"
	"github.com/bounan/matcher/logutils"
	"github.com/bounan/matcher/matcher"
	"github.com/bounan/matcher/params"
	"github.com/bounan/matcher/queue"
	"github.com/bounan/matcher/scenes"
)

const downloadTimeout = time.Minute

func CommandMatch(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "match",
		Usage: "Run the matcher worker",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Destination: &cfg.Match.ParameterName,
				EnvVars:     []string{"CONFIGURATION_PARAMETER_NAME"},
				Name:        "configuration-parameter-name",
				Usage:       "name of the SSM parameter with the runtime configuration",
				Value:       config.ParameterName,
			},

			&cli.BoolFlag{
				Destination: &cfg.Match.Force,
				EnvVars:     []string{"FORCE"},
				Name:        "force",
				Usage:       "process every available episode of the requested series",
			},
		},

		Action: func(cliCtx *cli.Context) error {
			l := zap.L()
			l.Info("Initialising the configuration")

			raw, err := params.Fetch(cfg.Match.ParameterName)
			if err != nil {
				return err
			}
			runtime, err := config.ParseRuntime([]byte(raw))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logutils.ContextWithLogger(ctx, l)

			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return err
			}

			httpClient := &http.Client{Timeout: downloadTimeout}
			downloader := audio.NewDownloader(httpClient,
				runtime.DownloadThreads,
				runtime.DownloadMaxRetriesForTs,
				runtime.TempDir,
			)
			loans := loanapi.New(awsCfg, runtime.LoanApiFunctionArn)
			finder := scenes.NewFinder(runtime, loans, downloader, scenes.EnvelopeRecognizer{}, httpClient)

			m := matcher.New(runtime, cfg.Match.Force,
				animan.New(awsCfg, runtime.GetSeriesToMatchLambdaName, runtime.UpdateVideoScenesLambdaName),
				loans,
				finder,
				queue.NewWaiter(awsCfg, runtime.NotificationQueueURL),
			)

			if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			l.Info("Shutting down")
			return nil
		},
	}
}
