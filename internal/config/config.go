// Package config assembles the daemon's runtime settings from three layers:
// built-in defaults, an optional JSON file, and command-line flags, each
// overriding the one before it.
package config

import "time"

// Config holds runtime settings for the offline core daemon.
type Config struct {
	// DatabasePath is the SQLite file backing the local store.
	DatabasePath string
	// CacheDir is the root directory for downloaded assets.
	CacheDir string
	// CacheQuota is the asset cache budget in bytes.
	CacheQuota int64
	// ServerBaseURL is the backend REST endpoint.
	ServerBaseURL string
	// EntitlementKey verifies the signature of entitlement tokens.
	EntitlementKey string

	// OnlineCheckInterval is how often connectivity is probed.
	OnlineCheckInterval time.Duration
	// SyncInterval is how often a queue drain is scheduled.
	SyncInterval time.Duration
	// EntitlementRefreshInterval is how often the subscription verdict is
	// re-fetched while online.
	EntitlementRefreshInterval time.Duration

	// S3Bucket switches asset downloads from plain HTTPS to S3 GetObject
	// when non-empty.
	S3Bucket   string
	S3Region   string
	S3Endpoint string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "serenity.db"
	c.CacheDir = "cache"
	c.CacheQuota = 500 * 1024 * 1024
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 15 * time.Minute
	c.EntitlementRefreshInterval = time.Hour
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
