package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/backend"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/ledger"
	"github.com/zulandar/switchboard/internal/telco"
)

func newDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity",
		Long:  "Runs diagnostic checks on the Switchboard setup: config, provider credentials, dedup ledger, event server, and app backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Switchboard Doctor")
	fmt.Fprintln(out, "==================")

	var results []checkResult

	// 1. Config
	cfg, cfgResult := checkConfig(configPath)
	results = append(results, cfgResult)

	// 2. Provider credentials
	if cfg != nil {
		results = append(results, checkProvider(cfg))
	} else {
		results = append(results, checkResult{"Provider", "FAIL", "skipped (no config)"})
	}

	// 3. Dedup ledger
	if cfg != nil {
		results = append(results, checkLedger(cfg))
	} else {
		results = append(results, checkResult{"Ledger", "FAIL", "skipped (no config)"})
	}

	// 4. Event server
	if cfg != nil {
		results = append(results, checkServer(cfg))
	} else {
		results = append(results, checkResult{"Event server", "FAIL", "skipped (no config)"})
	}

	// 5. App backend
	if cfg != nil {
		results = append(results, checkBackend(cfg))
	} else {
		results = append(results, checkResult{"App backend", "WARN", "skipped (no config)"})
	}

	// Print results.
	passed, failed, warned := 0, 0, 0
	for _, r := range results {
		printCheckResult(out, r)
		switch r.status {
		case "PASS":
			passed++
		case "FAIL":
			failed++
		case "WARN":
			warned++
		}
	}

	fmt.Fprintf(out, "\n%d passed, %d failed, %d warning\n", passed, failed, warned)

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func printCheckResult(out io.Writer, r checkResult) {
	fmt.Fprintf(out, "[%s] %s: %s\n", r.status, r.name, r.detail)
}

func checkConfig(path string) (*config.Config, checkResult) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, checkResult{"Config file", "FAIL", fmt.Sprintf("%s: %v", path, err)}
	}
	return cfg, checkResult{"Config file", "PASS", path}
}

func checkProvider(cfg *config.Config) checkResult {
	if cfg.Provider.APIKey == "" {
		return checkResult{"Provider", "WARN", "no API key configured (calls and SMS disabled)"}
	}
	api, err := telco.NewClient(telco.ClientOpts{
		BaseURL:            cfg.Provider.BaseURL,
		APIKey:             cfg.Provider.APIKey,
		SourceNumber:       cfg.Provider.SourceNumber,
		MessagingProfileID: cfg.Provider.MessagingProfileID,
	})
	if err != nil {
		return checkResult{"Provider", "FAIL", err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := api.ListInbound(ctx); err != nil {
		return checkResult{"Provider", "FAIL", fmt.Sprintf("inbound listing: %v", err)}
	}
	return checkResult{"Provider", "PASS", cfg.Provider.BaseURL}
}

func checkLedger(cfg *config.Config) checkResult {
	if cfg.Ledger.Path == "" {
		return checkResult{"Ledger", "WARN", "no path configured (dedup state is in-memory only)"}
	}
	led, err := ledger.OpenSQLite(cfg.Ledger.Path)
	if err != nil {
		return checkResult{"Ledger", "FAIL", fmt.Sprintf("%s: %v", cfg.Ledger.Path, err)}
	}
	defer led.Close()
	cursor := led.Cursor()
	if cursor.IsZero() {
		return checkResult{"Ledger", "PASS", fmt.Sprintf("%s (no cursor yet)", cfg.Ledger.Path)}
	}
	return checkResult{"Ledger", "PASS", fmt.Sprintf("%s (cursor %s)", cfg.Ledger.Path, cursor.Format(time.RFC3339))}
}

func checkServer(cfg *config.Config) checkResult {
	base := serverRESTBase(cfg)
	client, err := backend.NewClient(backend.ClientOpts{BaseURL: base})
	if err != nil {
		return checkResult{"Event server", "FAIL", err.Error()}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		return checkResult{"Event server", "WARN", fmt.Sprintf("not reachable at %s (is 'sb serve' running?)", base)}
	}
	online, err := client.OnlineUsers(ctx)
	if err != nil {
		return checkResult{"Event server", "WARN", fmt.Sprintf("presence: %v", err)}
	}
	return checkResult{"Event server", "PASS", fmt.Sprintf("%s (%d online)", base, len(online))}
}

func checkBackend(cfg *config.Config) checkResult {
	if cfg.Backend.BaseURL == "" {
		return checkResult{"App backend", "WARN", "no base URL configured"}
	}
	client, err := backend.NewClient(backend.ClientOpts{BaseURL: cfg.Backend.BaseURL})
	if err != nil {
		return checkResult{"App backend", "FAIL", err.Error()}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		return checkResult{"App backend", "WARN", fmt.Sprintf("not reachable at %s", cfg.Backend.BaseURL)}
	}
	return checkResult{"App backend", "PASS", cfg.Backend.BaseURL}
}
