package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecfetch"
	"github.com/hupe1980/vecfetch/codec"
	"github.com/hupe1980/vecfetch/internal/hash"
	"github.com/hupe1980/vecfetch/scheduler"
)

// ConfigEnv names the environment variable holding the config file path.
const ConfigEnv = "VECFETCH_CONFIG"

// Config is the CLI configuration. It is loaded from a single YAML file
// given by --config or VECFETCH_CONFIG; flags override individual values.
type Config struct {
	// CacheDir holds cache files, state and reference copies.
	CacheDir string `yaml:"cache_dir"`

	// Scheduler is one of conservative, default, aggressive, adaptive.
	Scheduler string `yaml:"scheduler"`

	// ChunkSize is the leaf size for built references, e.g. "1MiB".
	ChunkSize string `yaml:"chunk_size"`

	// Hash is sha256 or blake3.
	Hash string `yaml:"hash"`

	// Compression is none, zstd or lz4 for written artifacts.
	Compression string `yaml:"compression"`

	// MaxConcurrentFetches bounds parallel range requests.
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches"`

	// IOLimit caps download throughput per second, e.g. "50MB". Empty is
	// unlimited.
	IOLimit string `yaml:"io_limit"`

	// FlushInterval persists state after this many verified chunks.
	FlushInterval int `yaml:"flush_interval"`

	// BuildReference hashes the whole source when no reference is published.
	BuildReference bool `yaml:"build_reference"`

	Log   LogConfig   `yaml:"log"`
	HTTP  HTTPConfig  `yaml:"http"`
	S3    S3Config    `yaml:"s3"`
	MinIO MinIOConfig `yaml:"minio"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// HTTPConfig configures http(s) sources.
type HTTPConfig struct {
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// S3Config configures s3:// sources.
type S3Config struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// MinIOConfig configures minio:// sources.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cacheDir := ".vecfetch"
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = dir + string(os.PathSeparator) + "vecfetch"
	}
	return &Config{
		CacheDir:             cacheDir,
		Scheduler:            "default",
		ChunkSize:            "1MiB",
		Hash:                 "sha256",
		Compression:          "none",
		MaxConcurrentFetches: 4,
		Log:                  LogConfig{Level: "warn", Format: "text"},
		HTTP:                 HTTPConfig{Timeout: 60 * time.Second},
		MinIO:                MinIOConfig{Endpoint: "localhost:9000"},
	}
}

// LoadConfig reads path, or the file named by VECFETCH_CONFIG when path is
// empty. Without either it returns DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every enumerated and size-valued field.
func (c *Config) Validate() error {
	if _, err := scheduler.New(c.Scheduler); err != nil {
		return err
	}
	if _, err := c.chunkSize(); err != nil {
		return err
	}
	if _, err := hash.ParseAlgorithm(c.Hash); err != nil {
		return err
	}
	if _, err := c.codec(); err != nil {
		return err
	}
	if _, err := c.ioLimit(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func (c *Config) chunkSize() (int64, error) {
	n, err := humanize.ParseBytes(c.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("chunk_size: %w", err)
	}
	if n == 0 || n&(n-1) != 0 {
		return 0, fmt.Errorf("chunk_size: %s is not a power of two", humanize.IBytes(n))
	}
	return int64(n), nil
}

func (c *Config) ioLimit() (int64, error) {
	if c.IOLimit == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.IOLimit)
	if err != nil {
		return 0, fmt.Errorf("io_limit: %w", err)
	}
	return int64(n), nil
}

func (c *Config) codec() (codec.Codec, error) {
	cd, ok := codec.ByName(c.Compression)
	if !ok {
		return nil, fmt.Errorf("compression: unknown codec %q", c.Compression)
	}
	return cd, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Logger builds the configured logger.
func (c *Config) Logger() *vecfetch.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	if strings.EqualFold(c.Log.Format, "json") {
		return vecfetch.NewJSONLogger(level)
	}
	return vecfetch.NewTextLogger(level)
}

// ChannelOptions translates the configuration into channel options.
func (c *Config) ChannelOptions() ([]vecfetch.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sched, _ := scheduler.New(c.Scheduler)
	chunk, _ := c.chunkSize()
	alg, _ := hash.ParseAlgorithm(c.Hash)
	cd, _ := c.codec()
	limit, _ := c.ioLimit()

	return []vecfetch.Option{
		vecfetch.WithScheduler(sched),
		vecfetch.WithChunkSize(chunk),
		vecfetch.WithHashAlgorithm(alg),
		vecfetch.WithCompression(cd),
		vecfetch.WithMaxConcurrentFetches(c.MaxConcurrentFetches),
		vecfetch.WithIOLimit(limit),
		vecfetch.WithFlushInterval(c.FlushInterval),
		vecfetch.WithBuildReference(c.BuildReference),
		vecfetch.WithLogger(c.Logger()),
	}, nil
}
