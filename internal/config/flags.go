package config

import (
	"flag"
	"os"
	"time"

	"github.com/serenity-app/serenity/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the backend server (default from Config)
//	-d string   path to the SQLite database file
//	-o string   asset cache directory
//	-q int      asset cache quota in MiB
//	-i int      online check interval in seconds
//	-s int      sync drain interval in minutes
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-o", "-q", "-i", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerBaseURL, "a", cfg.ServerBaseURL, "base URL of the backend server")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the SQLite database file")
	fs.StringVar(&cfg.CacheDir, "o", cfg.CacheDir, "asset cache directory")
	cacheQuota := fs.Int64("q", cfg.CacheQuota/(1024*1024), "asset cache quota (in MiB)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Minutes()), "sync drain interval (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.CacheQuota = *cacheQuota * 1024 * 1024
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.SyncInterval = time.Duration(*syncInterval) * time.Minute
}
