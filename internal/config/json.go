package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/serenity-app/serenity/internal/flagx"
	"github.com/serenity-app/serenity/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "15m"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	DatabasePath               string         `json:"database_path"`
	CacheDir                   string         `json:"cache_dir"`
	CacheQuota                 int64          `json:"cache_quota"`
	ServerBaseURL              string         `json:"server_base_url"`
	EntitlementKey             string         `json:"entitlement_key"`
	OnlineCheckInterval        timex.Duration `json:"online_check_interval"`
	SyncInterval               timex.Duration `json:"sync_interval"`
	EntitlementRefreshInterval timex.Duration `json:"entitlement_refresh_interval"`
	S3Bucket                   string         `json:"s3_bucket"`
	S3Region                   string         `json:"s3_region"`
	S3Endpoint                 string         `json:"s3_endpoint"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Panics on read or unmarshal errors. Intended usage is:
// defaults -> parseJson -> parseFlags, where later stages override earlier
// ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.DatabasePath = jc.DatabasePath
	cfg.CacheDir = jc.CacheDir
	cfg.CacheQuota = jc.CacheQuota
	cfg.ServerBaseURL = jc.ServerBaseURL
	cfg.EntitlementKey = jc.EntitlementKey
	cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	cfg.EntitlementRefreshInterval = time.Duration(jc.EntitlementRefreshInterval.Duration)
	cfg.S3Bucket = jc.S3Bucket
	cfg.S3Region = jc.S3Region
	cfg.S3Endpoint = jc.S3Endpoint
}
