package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pilotx/pilotx/internal/options"
	"github.com/pilotx/pilotx/pkg/events"
	"github.com/pilotx/pilotx/pkg/rucio"
)

// newDownloadCmd stages data in from grid storage without running a pilot,
// for debugging workspaces and warming caches by hand.
func newDownloadCmd() *cobra.Command {
	ropts := options.DefaultRucioOptions()
	dir := "."

	cmd := &cobra.Command{
		Use:   "download DID [DID...]",
		Short: "stage data in from grid storage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			popts := options.DefaultOptions()
			popts.Rucio = ropts
			applyEnvFallbacks(popts)
			popts.Rucio.Resolve()

			client := rucio.New(rucio.Options{
				Home:         popts.Rucio.Home,
				ConfigFile:   popts.Rucio.ConfigFile,
				TemplateFile: popts.Rucio.TemplateFile,
				Account:      popts.Rucio.Account,
				Binary:       popts.Rucio.Binary,
				Timeout:      popts.Rucio.Timeout,
			})
			if err := client.EnsureConfig(); err != nil {
				return err
			}

			pub := events.FuncPublisher[rucio.Event](func(_ context.Context, e rucio.Event) error {
				if e.Log != nil {
					log.WithField("level", e.Log.Level).Info(e.Log.Message)
				}
				return nil
			})
			return client.Download(cmd.Context(), rucio.DownloadRequest{
				DIDs: args,
				Dir:  dir,
			}, pub)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dir, "dir", dir, "directory downloads land in")
	flags.StringVar(&ropts.Home, "rucio-home", ropts.Home, "rucio client home, exported as RUCIO_HOME")
	flags.StringVar(&ropts.ConfigFile, "rucio-config-file", ropts.ConfigFile,
		"rucio client config, exported as RUCIO_CONFIG")
	flags.StringVar(&ropts.TemplateFile, "rucio-template-file", ropts.TemplateFile,
		"template copied into place when the rucio config is missing")
	flags.StringVar(&ropts.Account, "rucio-account", ropts.Account, "rucio account to download data as")
	flags.StringVar(&ropts.Binary, "rucio-binary", ropts.Binary, "rucio client binary")
	flags.IntVar(&ropts.Timeout, "rucio-timeout", ropts.Timeout,
		"timeout for the download invocation, in seconds")

	return cmd
}
