package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/ledger"
	"github.com/zulandar/switchboard/internal/poller"
	"github.com/zulandar/switchboard/internal/store"
	"github.com/zulandar/switchboard/internal/telco"
)

func newSMSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sms",
		Short: "Send and watch text messages",
	}

	cmd.AddCommand(newSMSSendCmd())
	cmd.AddCommand(newSMSWatchCmd())
	return cmd
}

func newSMSSendCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "send <number> <text...>",
		Short: "Send a text message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSMSSend(cmd, configPath, args[0], strings.Join(args[1:], " "))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

func newSMSWatchCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll for inbound messages and print them",
		Long:  "Polls the provider on the configured interval and prints each new inbound message as it arrives.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSMSWatch(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

// buildPoller wires the provider client, ledger, and store into a poller.
func buildPoller(cmd *cobra.Command, cfg *config.Config, st *store.Store) (*poller.Poller, error) {
	api, err := telco.NewClient(telco.ClientOpts{
		BaseURL:            cfg.Provider.BaseURL,
		APIKey:             cfg.Provider.APIKey,
		SourceNumber:       cfg.Provider.SourceNumber,
		MessagingProfileID: cfg.Provider.MessagingProfileID,
	})
	if err != nil {
		return nil, err
	}

	var led ledger.Ledger
	if cfg.Ledger.Path != "" {
		led, err = ledger.OpenSQLite(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
	} else {
		led = ledger.NewMemory(time.Time{})
	}

	return poller.New(poller.Opts{
		API:      api,
		Ledger:   led,
		Store:    st,
		Interval: time.Duration(cfg.Client.PollIntervalSec) * time.Second,
		Out:      cmd.OutOrStdout(),
	})
}

func runSMSSend(cmd *cobra.Command, configPath, number, text string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("sms: no provider API key configured in %s (run: sb init)", configPath)
	}

	st := store.New()
	p, err := buildPoller(cmd, cfg, st)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := p.Send(ctx, number, text)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %s (%s)\n", number, id)
	return nil
}

func runSMSWatch(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("sms: no provider API key configured in %s (run: sb init)", configPath)
	}

	st := store.New()
	out := cmd.OutOrStdout()
	st.Subscribe(func(ch store.Change) {
		if ch.Kind != store.ChangeConversation {
			return
		}
		conv, ok := st.Conversation(ch.PhoneNumber)
		if !ok || len(conv.Messages) == 0 {
			return
		}
		m := conv.Messages[len(conv.Messages)-1]
		if m.Direction == store.DirectionInbound {
			fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Format(time.Kitchen), conv.PhoneNumber, m.Text)
		}
	})

	p, err := buildPoller(cmd, cfg, st)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := p.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "watching for messages every %ds (ctrl-c to stop)\n", cfg.Client.PollIntervalSec)
	<-ctx.Done()
	p.Stop()
	return nil
}
