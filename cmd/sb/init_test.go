package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/config"
)

func TestInit_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchboard.yaml")

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader("alice\nAlice\n+15550001111\nprofile-1\nkey-123\n"))
	cmd.SetArgs([]string{"init", "--config", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("init failed: %v\n%s", err, buf.String())
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.Client.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", cfg.Client.UserID)
	}
	if cfg.Client.Identity != "Alice" {
		t.Errorf("Identity = %q, want Alice", cfg.Client.Identity)
	}
	if cfg.Provider.APIKey != "key-123" {
		t.Errorf("APIKey = %q, want key-123", cfg.Provider.APIKey)
	}
	if cfg.Provider.SourceNumber != "+15550001111" {
		t.Errorf("SourceNumber = %q", cfg.Provider.SourceNumber)
	}
	if cfg.Provider.MessagingProfileID != "profile-1" {
		t.Errorf("MessagingProfileID = %q", cfg.Provider.MessagingProfileID)
	}
	if cfg.Ledger.Path != "switchboard.db" {
		t.Errorf("Ledger.Path = %q, want switchboard.db", cfg.Ledger.Path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %v, want 0600 (holds the API key)", info.Mode().Perm())
	}
}

func TestInit_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	if err := os.WriteFile(path, []byte("client:\n  user_id: bob\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"init", "--config", path})

	if err := cmd.Execute(); err == nil {
		t.Fatal("init should refuse to overwrite without --force")
	}

	// The original file is untouched.
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Client.UserID != "bob" {
		t.Errorf("UserID = %q, want the original bob", cfg.Client.UserID)
	}
}

func TestInit_ForceOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	if err := os.WriteFile(path, []byte("client:\n  user_id: bob\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader("alice\nAlice\n+15550001111\nprofile-1\nkey-123\n"))
	cmd.SetArgs([]string{"init", "--config", path, "--force"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("init --force failed: %v\n%s", err, buf.String())
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Client.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", cfg.Client.UserID)
	}
}
