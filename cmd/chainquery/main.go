// Package main: chainquery service.
//
// The service introspects the configured platforms once at startup, retrying until the backing store is usable or
// the startup deadline passes, and only then starts serving the RESTful API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tarancss/chainquery/lib/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		confPath string
		monitor  bool
	)

	cmd := &cobra.Command{
		Use:          "chainquery",
		Short:        "Blockchain data query service",
		Long:         `Serves the metadata and the data of the configured blockchain platforms over a RESTful API.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// extract configuration
			conf, err := config.ExtractConfiguration(confPath)
			if err != nil {
				return err
			}

			if monitor {
				conf.Metrics.Enabled = true
			}

			log, closeLog, err := newLogger(conf.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			slog.SetDefault(log)

			// capture CTRL+C or docker's SIGTERM for gracious exit
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err = run(ctx, conf, log); err != nil {
				log.Error("Service terminated", slog.Any("error", err))

				return err
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&confPath, "config", "c", "", "configuration file (json or yaml)")
	cmd.Flags().BoolVarP(&monitor, "monitor", "m", false, "serve Prometheus metrics on metrics.addr")

	return cmd
}
