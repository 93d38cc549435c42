package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vecfetch.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv(ConfigEnv, "")
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "default", cfg.Scheduler)
		assert.NoError(t, cfg.Validate())

		chunk, err := cfg.chunkSize()
		require.NoError(t, err)
		assert.Equal(t, int64(1<<20), chunk)
	})

	t.Run("File", func(t *testing.T) {
		p := writeConfig(t, `
cache_dir: /tmp/cache
scheduler: aggressive
chunk_size: 256KiB
hash: blake3
compression: zstd
max_concurrent_fetches: 8
io_limit: 10MB
flush_interval: 16
log:
  level: debug
  format: json
http:
  timeout: 5s
  headers:
    Authorization: Bearer token
s3:
  region: eu-central-1
`)
		cfg, err := LoadConfig(p)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/cache", cfg.CacheDir)
		assert.Equal(t, "aggressive", cfg.Scheduler)
		assert.Equal(t, 8, cfg.MaxConcurrentFetches)
		assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
		assert.Equal(t, "Bearer token", cfg.HTTP.Headers["Authorization"])
		assert.Equal(t, "eu-central-1", cfg.S3.Region)
		// Unset sections keep their defaults.
		assert.Equal(t, "localhost:9000", cfg.MinIO.Endpoint)

		chunk, err := cfg.chunkSize()
		require.NoError(t, err)
		assert.Equal(t, int64(256<<10), chunk)
		limit, err := cfg.ioLimit()
		require.NoError(t, err)
		assert.Equal(t, int64(10_000_000), limit)

		opts, err := cfg.ChannelOptions()
		require.NoError(t, err)
		assert.NotEmpty(t, opts)
	})

	t.Run("Env", func(t *testing.T) {
		p := writeConfig(t, "scheduler: conservative\n")
		t.Setenv(ConfigEnv, p)
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "conservative", cfg.Scheduler)
	})

	t.Run("Invalid", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"Scheduler", "scheduler: greedy\n"},
			{"ChunkNotPowerOfTwo", "chunk_size: 1000\n"},
			{"ChunkUnparsable", "chunk_size: lots\n"},
			{"Hash", "hash: md5\n"},
			{"Compression", "compression: brotli\n"},
			{"LogLevel", "log:\n  level: loud\n"},
			{"YAML", "scheduler: [\n"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := LoadConfig(writeConfig(t, tt.body))
				assert.Error(t, err)
			})
		}
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in          string
		off, length int64
		wantErr     bool
	}{
		{"", 0, 1000, false},
		{"100:50", 100, 50, false},
		{"100:", 100, 900, false},
		{"900:500", 900, 100, false},
		{"1KB:0", 1000, 0, false},
		{"2000:1", 0, 0, true},
		{"x:1", 0, 0, true},
		{"1:y", 0, 0, true},
	}
	for _, tt := range tests {
		off, length, err := parseRange(tt.in, 1000)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.off, off, tt.in)
		assert.Equal(t, tt.length, length, tt.in)
	}
}
