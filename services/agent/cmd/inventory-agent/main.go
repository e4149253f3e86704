package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"fleetinv/pkg/bus"
	"fleetinv/pkg/telemetry"
	"fleetinv/services/agent"
)

const serviceName = "inventory-agent"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		once       bool
	)

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Collect local machine facts and report them to the inventory service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := agent.LoadConfig(configPath)
			if err != nil {
				return err
			}

			logger := telemetry.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stdout)

			var publisher agent.Publisher
			if cfg.NATSURL != "" {
				b, err := bus.New(cfg.NATSURL, nats.Name(serviceName))
				if err != nil {
					return fmt.Errorf("connect nats: %w", err)
				}
				defer b.Close()
				publisher = b
			}

			svc, err := agent.NewService(cfg, agent.NewCollector(logger), publisher, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if once {
				return svc.ReportOnce(ctx)
			}
			if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", agent.ConfigPath, "path to agent configuration file")
	cmd.Flags().BoolVar(&once, "once", false, "report a single snapshot and exit")
	return cmd
}
