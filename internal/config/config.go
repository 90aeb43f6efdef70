// Package config loads runtime settings for the SeamlessAuth client.
// Precedence is defaults, then a JSON file, then command-line flags.
package config

import (
	"time"

	"github.com/fells-code/seamless-auth-go/internal/api"
)

// Config holds runtime settings for the client SDK and demo CLI.
//
// Fields:
//   - Host: base URL of the auth service.
//   - Mode: endpoint layout, "web" (unprefixed) or "server" ("auth/"-prefixed).
//   - Credentials: "bearer" (tokens in local storage) or "cookie".
//   - RequestTimeout: per-request HTTP timeout.
//   - DatabaseDSN: sqlite file holding persisted client state (tokens,
//     prior-sign-in marker). Empty keeps state in memory only.
//   - StorageSecret: when set, tokens at rest are sealed under a key
//     derived from this secret.
type Config struct {
	Host           string
	Mode           api.Mode
	Credentials    api.CredentialMode
	RequestTimeout time.Duration
	DatabaseDSN    string
	StorageSecret  string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Host = "http://127.0.0.1:8080"
	c.Mode = api.ModeWeb
	c.Credentials = api.CredentialBearer
	c.RequestTimeout = 30 * time.Second
	c.DatabaseDSN = "seamless-auth.db"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
