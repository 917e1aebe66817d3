package main

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
	"github.com/urfave/cli/v2"

	"github.com/bounan/matcher/config"
	"github.com/bounan/matcher/stack"
)

const stackName = "BounanMatcherStack"

func CommandSynth(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "synth",
		Usage: "Synthesise the matcher infrastructure stack (default)",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Destination: &cfg.Synth.SettingsFile,
				EnvVars:     []string{"SETTINGS_FILE"},
				Name:        "settings-file",
				Usage:       "local settings file with values that override cross-stack imports",
				Value:       "settings.yaml",
			},
		},

		Action: func(ctx *cli.Context) error {
			defer jsii.Close()

			file, err := config.NewFileSource(cfg.Synth.SettingsFile)
			if err != nil {
				return err
			}
			// The environment overlays the settings file.
			local := config.Sources{config.EnvSource{}, file}
			resolved := config.NewResolved(config.NewResolver(local))

			app := awscdk.NewApp(nil)
			stack.NewMatcherStack(app, stackName, resolved, &awscdk.StackProps{})
			app.Synth(nil)

			return nil
		},
	}
}
