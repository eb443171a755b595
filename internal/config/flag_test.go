package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd", "-a", "https://api.example.com", "-d", "/data/s.db", "-o", "/data/cache", "-q", "100", "-i", "10", "-s", "5"},
			expectPanic: false,
			expected: &Config{
				ServerBaseURL:       "https://api.example.com",
				DatabasePath:        "/data/s.db",
				CacheDir:            "/data/cache",
				CacheQuota:          100 * 1024 * 1024,
				OnlineCheckInterval: 10 * time.Second,
				SyncInterval:        5 * time.Minute,
			}},
		{name: "Test2 incorrect check interval", args: []string{"cmd", "-i", "abc"}, expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
