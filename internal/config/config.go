// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from
// switchboard.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	Provider ProviderConfig `yaml:"provider"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Backend  BackendConfig  `yaml:"backend"`
}

// ServerConfig holds settings for the coordinating presence server.
type ServerConfig struct {
	Port int `yaml:"port"`
	// DigestCron is a 5-field cron expression controlling the periodic
	// stats digest log line. Empty disables the digest.
	DigestCron string `yaml:"digest_cron"`
}

// ClientConfig holds settings for the client-side realtime session layer.
type ClientConfig struct {
	ServerURL         string `yaml:"server_url"` // ws:// or wss:// endpoint
	UserID            string `yaml:"user_id"`
	Identity          string `yaml:"identity"` // display identity; defaults to user_id
	PollIntervalSec   int    `yaml:"poll_interval_sec"`
	ReconnectDelaySec int    `yaml:"reconnect_delay_sec"`
	QueueCapacity     int    `yaml:"queue_capacity"`
}

// ProviderConfig holds credentials for the external voice/SMS provider.
type ProviderConfig struct {
	BaseURL            string `yaml:"base_url"`
	APIKey             string `yaml:"api_key"`
	MessagingProfileID string `yaml:"messaging_profile_id"`
	SourceNumber       string `yaml:"source_number"` // the number calls/texts originate from
}

// LedgerConfig controls the dedup ledger backing store.
type LedgerConfig struct {
	// Path to the sqlite ledger file. Empty selects the in-memory ledger
	// (dedup state then lasts only for the process lifetime).
	Path string `yaml:"path"`
}

// BackendConfig points at the external app backend's diagnostic REST
// surface. Consumed only; never required for call/SMS flows.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = fmt.Sprintf("ws://127.0.0.1:%d/ws", c.Server.Port)
	}
	if c.Client.Identity == "" {
		c.Client.Identity = c.Client.UserID
	}
	if c.Client.PollIntervalSec == 0 {
		c.Client.PollIntervalSec = 5
	}
	if c.Client.ReconnectDelaySec == 0 {
		c.Client.ReconnectDelaySec = 3
	}
	if c.Client.QueueCapacity == 0 {
		c.Client.QueueCapacity = 100
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.telnyx.com/v2"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be a valid TCP port")
	}
	if c.Client.PollIntervalSec < 1 {
		errs = append(errs, "client.poll_interval_sec must be at least 1")
	}
	if c.Client.ReconnectDelaySec < 1 {
		errs = append(errs, "client.reconnect_delay_sec must be at least 1")
	}
	if c.Client.QueueCapacity < 1 {
		errs = append(errs, "client.queue_capacity must be at least 1")
	}
	if c.Provider.APIKey != "" {
		if c.Provider.SourceNumber == "" {
			errs = append(errs, "provider.source_number is required when provider.api_key is set")
		}
		if c.Provider.MessagingProfileID == "" {
			errs = append(errs, "provider.messaging_profile_id is required when provider.api_key is set")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
