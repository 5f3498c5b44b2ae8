package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pilotx/pilotx/pkg/logger"
)

type rootOptions struct {
	logger.Config

	noColor bool
}

var version = "dev"

func newRootCmd() *cobra.Command {
	opts := rootOptions{}

	cmd := &cobra.Command{
		Use:     "pilotx",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindEnv("PILOTX_", cmd); err != nil {
				return err
			}

			if opts.Level == "" {
				opts.Level = "info"
			}

			var usedDeprecatedColor bool
			if opts.noColor && opts.Color {
				usedDeprecatedColor = true
				opts.Color = !opts.noColor
			}

			logger.SetLogrus(opts.Config)

			if usedDeprecatedColor {
				logrus.Warn("use of deprecated flag `--no-color`, please upgrade to `--color`")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Level, "level", "l", "",
		"set the logging level (can be one of: debug, info, warn, error, or fatal)")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().BoolVar(&opts.Color, "color", true, "enable colored output")

	cmd.AddCommand(newCompletionCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDownloadCmd())

	return cmd
}
