package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/backend"
	"github.com/zulandar/switchboard/internal/config"
)

func newBroadcastCmd() *cobra.Command {
	var configPath string
	var from string

	cmd := &cobra.Command{
		Use:   "broadcast <text...>",
		Short: "Send an announcement to every connected client",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBroadcast(cmd, configPath, from, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	cmd.Flags().StringVar(&from, "from", "operator", "sender name shown to clients")
	return cmd
}

// serverRESTBase derives the event server's HTTP base from the client's
// websocket URL; both live on the same listener.
func serverRESTBase(cfg *config.Config) string {
	base := strings.TrimSuffix(cfg.Client.ServerURL, "/ws")
	base = strings.Replace(base, "wss://", "https://", 1)
	return strings.Replace(base, "ws://", "http://", 1)
}

func runBroadcast(cmd *cobra.Command, configPath, from, text string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := backend.NewClient(backend.ClientOpts{BaseURL: serverRESTBase(cfg)})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.TriggerBroadcast(ctx, from, text); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "broadcast sent")
	return nil
}
