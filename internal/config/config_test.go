package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullYAML = `
server:
  port: 9100
  digest_cron: "0 * * * *"

client:
  server_url: wss://sb.example.com/ws
  user_id: alice
  identity: Alice
  poll_interval_sec: 10
  reconnect_delay_sec: 5
  queue_capacity: 50

provider:
  base_url: https://api.telnyx.com/v2
  api_key: key-123
  messaging_profile_id: profile-9
  source_number: "+15550001111"

ledger:
  path: /var/lib/sb/ledger.db

backend:
  base_url: https://app.example.com
`

const minimalYAML = `
client:
  user_id: bob
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Server.DigestCron != "0 * * * *" {
		t.Errorf("Server.DigestCron = %q, want %q", cfg.Server.DigestCron, "0 * * * *")
	}
	if cfg.Client.ServerURL != "wss://sb.example.com/ws" {
		t.Errorf("Client.ServerURL = %q, want wss://sb.example.com/ws", cfg.Client.ServerURL)
	}
	if cfg.Client.Identity != "Alice" {
		t.Errorf("Client.Identity = %q, want %q", cfg.Client.Identity, "Alice")
	}
	if cfg.Client.PollIntervalSec != 10 {
		t.Errorf("Client.PollIntervalSec = %d, want 10", cfg.Client.PollIntervalSec)
	}
	if cfg.Provider.MessagingProfileID != "profile-9" {
		t.Errorf("Provider.MessagingProfileID = %q, want %q", cfg.Provider.MessagingProfileID, "profile-9")
	}
	if cfg.Ledger.Path != "/var/lib/sb/ledger.db" {
		t.Errorf("Ledger.Path = %q, want /var/lib/sb/ledger.db", cfg.Ledger.Path)
	}
	if cfg.Backend.BaseURL != "https://app.example.com" {
		t.Errorf("Backend.BaseURL = %q, want https://app.example.com", cfg.Backend.BaseURL)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8090 {
		t.Errorf("Server.Port = %d, want default 8090", cfg.Server.Port)
	}
	if cfg.Client.ServerURL != "ws://127.0.0.1:8090/ws" {
		t.Errorf("Client.ServerURL = %q, want ws://127.0.0.1:8090/ws", cfg.Client.ServerURL)
	}
	if cfg.Client.Identity != "bob" {
		t.Errorf("Client.Identity = %q, want user_id fallback %q", cfg.Client.Identity, "bob")
	}
	if cfg.Client.PollIntervalSec != 5 {
		t.Errorf("Client.PollIntervalSec = %d, want default 5", cfg.Client.PollIntervalSec)
	}
	if cfg.Client.ReconnectDelaySec != 3 {
		t.Errorf("Client.ReconnectDelaySec = %d, want default 3", cfg.Client.ReconnectDelaySec)
	}
	if cfg.Client.QueueCapacity != 100 {
		t.Errorf("Client.QueueCapacity = %d, want default 100", cfg.Client.QueueCapacity)
	}
	if cfg.Provider.BaseURL != "https://api.telnyx.com/v2" {
		t.Errorf("Provider.BaseURL = %q, want default telnyx base", cfg.Provider.BaseURL)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad port",
			yaml:    "server:\n  port: 70000\n",
			wantErr: "server.port",
		},
		{
			name:    "api key without source number",
			yaml:    "provider:\n  api_key: key\n  messaging_profile_id: p\n",
			wantErr: "provider.source_number",
		},
		{
			name:    "api key without profile",
			yaml:    "provider:\n  api_key: key\n  source_number: \"+15550001111\"\n",
			wantErr: "provider.messaging_profile_id",
		},
		{
			name:    "negative poll interval",
			yaml:    "client:\n  poll_interval_sec: -1\n",
			wantErr: "client.poll_interval_sec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [not a map"))
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switchboard.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Client.UserID != "alice" {
		t.Errorf("Client.UserID = %q, want %q", cfg.Client.UserID, "alice")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
