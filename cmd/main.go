package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/bounan/matcher/config"
	"github.com/bounan/matcher/logutils"
)

const appName = "bounan-matcher"

var version = "development"

var (
	ErrFailedToSetupLogging = errors.New("failed to setup logging")
)

func main() {
	cfg := &config.Config{}

	app := &cli.App{
		Name:    appName,
		Usage:   "Synthesise the matcher infrastructure and run the matcher worker",
		Version: version,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Destination: &cfg.Log.Level,
				EnvVars:     []string{"LOG_LEVEL"},
				Name:        "log-level",
				Usage:       "logging level",
				Value:       defaultFor("info", "debug"),
			},

			&cli.StringFlag{
				Destination: &cfg.Log.Mode,
				EnvVars:     []string{"LOG_MODE"},
				Name:        "log-mode",
				Usage:       "logging mode",
				Value:       defaultFor("prod", "dev"),
			},
		},

		Before: func(ctx *cli.Context) error {
			l, err := logutils.NewLogger(cfg.Log.Mode, cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("%w: %w",
					ErrFailedToSetupLogging, err,
				)
			}
			zap.ReplaceGlobals(l)
			return nil
		},

		DefaultCommand: "synth",

		Commands: []*cli.Command{
			CommandSynth(cfg),
			CommandMatch(cfg),
		},
	}

	defer func() {
		zap.L().Sync() //nolint:errcheck
	}()
	if err := app.Run(os.Args); err != nil {
		zap.L().Error("Failed with error", zap.Error(err))
		os.Exit(1)
	}
}

// defaultFor picks the release or the development flag default,
// depending on how the binary was built.
func defaultFor(release, development string) string {
	if version == "development" {
		return development
	}
	return release
}
