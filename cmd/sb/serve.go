package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/backend"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/switchboard"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the switchboard event server",
		Long:  "Accepts websocket connections from clients, tracks presence, and relays realtime events.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The app backend is diagnostic-only; an unreachable backend is worth a
	// line on startup but never blocks serving.
	if cfg.Backend.BaseURL != "" {
		client, err := backend.NewClient(backend.ClientOpts{BaseURL: cfg.Backend.BaseURL})
		if err == nil {
			checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := client.Health(checkCtx); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: app backend %s not reachable: %v\n", cfg.Backend.BaseURL, err)
			}
			checkCancel()
		}
	}

	reg := switchboard.NewRegistry(switchboard.RegistryOpts{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return switchboard.Start(ctx, switchboard.StartOpts{
		Port:       cfg.Server.Port,
		DigestCron: cfg.Server.DigestCron,
		Registry:   reg,
		Out:        cmd.OutOrStdout(),
	})
}
