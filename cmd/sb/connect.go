package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/partyline"
	"github.com/zulandar/switchboard/internal/wire"
)

func newConnectCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to the event server and print realtime events",
		Long:  "Opens a client session on the switchboard server, announces presence, and prints events as they arrive. Reconnects automatically when the connection drops.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

func runConnect(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Client.UserID == "" {
		return fmt.Errorf("connect: no client.user_id configured in %s (run: sb init)", configPath)
	}

	bus, err := partyline.New(partyline.BusOpts{
		ServerURL:      cfg.Client.ServerURL,
		UserID:         cfg.Client.UserID,
		Identity:       cfg.Client.Identity,
		ReconnectDelay: time.Duration(cfg.Client.ReconnectDelaySec) * time.Second,
		QueueCapacity:  cfg.Client.QueueCapacity,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	bus.Subscribe(func(ev wire.Event) {
		switch ev.Type {
		case wire.EventPresence:
			var p wire.Presence
			if ev.Decode(&p) == nil {
				fmt.Fprintf(out, "presence: %s is %s\n", p.Identity, p.Status)
			}
		case wire.EventBroadcast:
			var b wire.Broadcast
			if ev.Decode(&b) == nil {
				fmt.Fprintf(out, "broadcast from %s: %s\n", b.From, b.Text)
			}
		case wire.EventTyping:
			var t wire.Typing
			if ev.Decode(&t) == nil {
				fmt.Fprintf(out, "%s is typing\n", t.From)
			}
		case wire.EventFriendRequest:
			var fr wire.FriendRequest
			if ev.Decode(&fr) == nil {
				fmt.Fprintf(out, "friend request from %s: %s\n", fr.From, fr.Message)
			}
		default:
			fmt.Fprintf(out, "event: %s\n", ev.Type)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := bus.Connect(); err != nil {
		return err
	}
	fmt.Fprintf(out, "connected as %s (ctrl-c to quit)\n", cfg.Client.UserID)
	<-ctx.Done()
	return bus.Close()
}
