package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/zulandar/switchboard/internal/config"
)

func newInitCmd() *cobra.Command {
	var configPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a Switchboard config file",
		Long:  "Prompts for provider credentials and writes a starter switchboard.yaml.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, configPath, force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to write the config file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	return cmd
}

// readSecret reads a line without echo when stdin is a terminal, falling
// back to plain line reading otherwise (tests, pipes).
func readSecret(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readTrimmed(in)
}

func readLine(cmd *cobra.Command, in *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	return readTrimmed(in)
}

func readTrimmed(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runInit(cmd *cobra.Command, configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("init: %s already exists (use --force to overwrite)", configPath)
	}

	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	userID, err := readLine(cmd, in, "user ID: ")
	if err != nil {
		return fmt.Errorf("init: read user ID: %w", err)
	}
	identity, err := readLine(cmd, in, "display name: ")
	if err != nil {
		return fmt.Errorf("init: read display name: %w", err)
	}
	sourceNumber, err := readLine(cmd, in, "provider source number (E.164): ")
	if err != nil {
		return fmt.Errorf("init: read source number: %w", err)
	}
	profileID, err := readLine(cmd, in, "messaging profile ID: ")
	if err != nil {
		return fmt.Errorf("init: read profile ID: %w", err)
	}
	fmt.Fprint(out, "provider API key (hidden): ")
	apiKey, err := readSecret(cmd, in)
	if err != nil {
		return fmt.Errorf("init: read API key: %w", err)
	}

	cfg := config.Config{}
	cfg.Client.UserID = userID
	cfg.Client.Identity = identity
	cfg.Provider.APIKey = apiKey
	cfg.Provider.SourceNumber = sourceNumber
	cfg.Provider.MessagingProfileID = profileID
	cfg.Ledger.Path = "switchboard.db"

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("init: marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("init: write %s: %w", configPath, err)
	}

	fmt.Fprintf(out, "wrote %s\n", configPath)
	fmt.Fprintln(out, "run 'sb doctor' to verify the setup")
	return nil
}
