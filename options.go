package vecfetch

import (
	"log/slog"

	"github.com/hupe1980/vecfetch/codec"
	"github.com/hupe1980/vecfetch/internal/fs"
	"github.com/hupe1980/vecfetch/internal/hash"
	"github.com/hupe1980/vecfetch/internal/regionlock"
	"github.com/hupe1980/vecfetch/merkle"
	"github.com/hupe1980/vecfetch/scheduler"
)

// HashAlgorithm selects the digest used when a reference is built.
type HashAlgorithm = hash.Algorithm

// Supported hash algorithms.
const (
	SHA256 HashAlgorithm = hash.SHA256
	BLAKE3 HashAlgorithm = hash.BLAKE3
)

// defaultReadRounds bounds how often a read reschedules leaves that are
// still missing after the futures it waited on completed.
const defaultReadRounds = 3

type options struct {
	scheduler            scheduler.Scheduler
	logger               *Logger
	metricsCollector     MetricsCollector
	chunkSize            int64
	hashAlgorithm        HashAlgorithm
	codec                codec.Codec
	regionSize           int64
	regionStripes        int
	maxConcurrentFetches int64
	ioLimit              int64
	workers              int
	reference            *merkle.Reference
	referencePath        string
	buildReference       bool
	flushInterval        int
	fs                   fs.FileSystem
	readRounds           int
}

// Option configures Open and OpenStore.
type Option func(*options)

// WithScheduler sets the policy that turns missing leaves into downloads.
// If nil is passed, scheduler.Default is used.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(o *options) {
		if s == nil {
			s = scheduler.Default{}
		}
		o.scheduler = s
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecfetch.NewJSONLogger(slog.LevelInfo)
//	ch, _ := vecfetch.Open(ctx, transport, "./cache/base.fvec", vecfetch.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecfetch.BasicMetricsCollector{}
//	ch, _ := vecfetch.Open(ctx, transport, path, vecfetch.WithMetricsCollector(metrics))
//	// ... use ch ...
//	stats := metrics.GetStats()
//	fmt.Printf("Fetched: %d bytes in %d requests\n", stats.FetchBytes, stats.FetchCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithChunkSize sets the leaf size used when a reference is built from the
// source. It must be a power of two. Loaded references keep their own.
func WithChunkSize(size int64) Option {
	return func(o *options) {
		o.chunkSize = size
	}
}

// WithHashAlgorithm sets the digest used when a reference is built from
// the source.
func WithHashAlgorithm(alg HashAlgorithm) Option {
	return func(o *options) {
		o.hashAlgorithm = alg
	}
}

// WithCompression sets the codec for state and reference artifacts written
// by the channel. If nil is passed, codec.Default is used.
func WithCompression(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithRegionSize sets the cache-file lock granularity and stripe count.
// Zero values keep the defaults.
func WithRegionSize(size int64, stripes int) Option {
	return func(o *options) {
		o.regionSize = size
		o.regionStripes = stripes
	}
}

// WithMaxConcurrentFetches bounds the number of range requests in flight.
// The download worker count follows it.
func WithMaxConcurrentFetches(n int) Option {
	return func(o *options) {
		o.maxConcurrentFetches = int64(n)
	}
}

// WithIOLimit caps download throughput in bytes per second. Zero disables
// the limit.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithReference supplies the reference directly.
func WithReference(ref *merkle.Reference) Option {
	return func(o *options) {
		o.reference = ref
	}
}

// WithReferencePath loads the reference from a local artifact.
func WithReferencePath(path string) Option {
	return func(o *options) {
		o.referencePath = path
	}
}

// WithBuildReference allows Open to build the reference by hashing the
// whole source when no artifact is available. This downloads the source
// once without caching it.
func WithBuildReference(enabled bool) Option {
	return func(o *options) {
		o.buildReference = enabled
	}
}

// WithFlushInterval flushes the state artifact after every n validated
// leaves. Zero flushes only on Force and Close.
func WithFlushInterval(n int) Option {
	return func(o *options) {
		o.flushInterval = n
	}
}

// withWorkers sets the number of download workers. By default there is one
// per fetch slot.
func withWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// withFileSystem swaps the filesystem holding the cache and artifacts.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		scheduler:        scheduler.Default{},
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		chunkSize:        merkle.DefaultChunkSize,
		hashAlgorithm:    SHA256,
		codec:            codec.Default,
		regionSize:       regionlock.DefaultRegionSize,
		regionStripes:    regionlock.DefaultStripes,
		fs:               fs.Default,
		readRounds:       defaultReadRounds,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.fs == nil {
		o.fs = fs.Default
	}
	return o
}
