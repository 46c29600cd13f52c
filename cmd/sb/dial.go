package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/call"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/store"
	"github.com/zulandar/switchboard/internal/telco"
)

func newDialCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "dial <number>",
		Short: "Place a voice call",
		Long:  "Dials the given number through the telephony provider and keeps the call up until interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDial(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

func runDial(cmd *cobra.Command, configPath, number string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("dial: no provider API key configured in %s (run: sb init)", configPath)
	}

	api, err := telco.NewClient(telco.ClientOpts{
		BaseURL:            cfg.Provider.BaseURL,
		APIKey:             cfg.Provider.APIKey,
		SourceNumber:       cfg.Provider.SourceNumber,
		MessagingProfileID: cfg.Provider.MessagingProfileID,
	})
	if err != nil {
		return err
	}

	st := store.New()
	coord, err := call.NewCoordinator(call.CoordinatorOpts{
		API:   api,
		Store: st,
		Out:   cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "dialing %s...\n", number)
	if _, err := coord.Dial(ctx, number); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-sigCh:
			hangupCtx, hangupCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer hangupCancel()
			return coord.Hangup(hangupCtx)
		case <-t.C:
			if sess, ok := coord.Current(); ok {
				fmt.Fprintf(out, "on call with %s (%s elapsed)\n", sess.PhoneNumber, sess.Elapsed.Round(time.Second))
			}
		}
	}
}
