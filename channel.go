package vecfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecfetch/blobstore"
	"github.com/hupe1980/vecfetch/internal/fs"
	"github.com/hupe1980/vecfetch/internal/regionlock"
	"github.com/hupe1980/vecfetch/internal/resource"
	"github.com/hupe1980/vecfetch/merkle"
	"github.com/hupe1980/vecfetch/queue"
)

// Channel is a randomly addressable view of a remote source backed by a
// local cache file. Only leaves that passed hash verification are served
// from the cache; missing leaves are downloaded on demand.
//
// Channel is safe for concurrent use.
type Channel struct {
	opts      options
	logger    *Logger
	metrics   MetricsCollector
	path      string
	transport blobstore.Transport
	shape     merkle.Shape
	state     *merkle.State
	cache     fs.File
	locks     *regionlock.Locker
	queue     *queue.Queue
	rc        *resource.Controller

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup

	// life guards the cache file handle against Close.
	life   sync.RWMutex
	closed atomic.Bool

	closeOnce sync.Once
	closeErr  error

	sinceFlush        atomic.Int64
	fetches           atomic.Int64
	fetchedBytes      atomic.Int64
	integrityFailures atomic.Int64
	transportFailures atomic.Int64
}

// Stats is a snapshot of channel counters.
type Stats struct {
	Size              int64
	ChunkSize         int64
	Leaves            int
	ValidLeaves       int
	Queue             queue.Stats
	Fetches           int64
	FetchedBytes      int64
	IntegrityFailures int64
	TransportFailures int64
}

// Open returns a Channel over t cached at cachePath. The state artifact lives
// at cachePath+".mrkl" and a copy of the reference at cachePath+".mref".
//
// If a cache and state from a previous run exist and agree with the source,
// every leaf they mark valid is served locally without transport calls.
// Otherwise a reference is resolved (WithReference, WithReferencePath, the
// local copy or WithBuildReference) and an empty state is created.
//
// The channel owns t and closes it on Close.
func Open(ctx context.Context, t blobstore.Transport, cachePath string, optFns ...Option) (*Channel, error) {
	return open(ctx, t, cachePath, nil, optFns)
}

// OpenStore opens name in store and caches it at filepath.Join(cacheDir, name).
// In addition to the sources Open consults, the reference is fetched from
// name+".mref" in store.
func OpenStore(ctx context.Context, store blobstore.BlobStore, name, cacheDir string, optFns ...Option) (*Channel, error) {
	t, err := blobstore.OpenTransport(ctx, store, name)
	if err != nil {
		return nil, fmt.Errorf("vecfetch: open %s: %w", name, err)
	}
	remote := &remoteReference{
		key: fmt.Sprintf("%p/%s", store, name),
		fetch: func(ctx context.Context) ([]byte, error) {
			return blobstore.ReadAll(ctx, store, name+merkle.ReferenceExt)
		},
	}
	ch, err := open(ctx, t, filepath.Join(cacheDir, filepath.FromSlash(name)), remote, optFns)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	ch.logger = ch.logger.WithSource(name)
	return ch, nil
}

func open(ctx context.Context, t blobstore.Transport, cachePath string, remote *remoteReference, optFns []Option) (*Channel, error) {
	o := applyOptions(optFns)

	size, err := t.Size(ctx)
	if err != nil {
		return nil, &TransportError{Offset: 0, Length: -1, cause: err}
	}
	if !t.SupportsRangeRequests() {
		o.logger.WarnContext(ctx, "transport does not support range requests", "cache", cachePath)
	}
	if err := o.fs.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, err
	}

	state, cache, resumed, err := openCache(ctx, &o, t, cachePath, remote, size)
	if err != nil {
		return nil, err
	}
	_ = fs.AdviseRandom(cache)

	rc := resource.NewController(resource.Config{
		MaxConcurrentFetches: o.maxConcurrentFetches,
		IOLimitBytesPerSec:   o.ioLimit,
	})
	workers := o.workers
	if workers <= 0 {
		workers = rc.MaxConcurrentFetches()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Channel{
		opts:      o,
		logger:    o.logger,
		metrics:   o.metricsCollector,
		path:      cachePath,
		transport: t,
		shape:     state.Shape(),
		state:     state,
		cache:     cache,
		locks:     regionlock.New(o.regionSize, o.regionStripes),
		queue:     queue.New(),
		rc:        rc,
		ctx:       runCtx,
		cancel:    cancel,
	}
	for range workers {
		c.workers.Add(1)
		go c.work()
	}

	c.logger.LogOpen(ctx, cachePath, size, state.ValidCount(), c.shape.LeafCount(), resumed)
	return c, nil
}

// openCache reuses a consistent cache/state pair or creates a fresh one.
func openCache(ctx context.Context, o *options, t blobstore.Transport, cachePath string, remote *remoteReference, size int64) (*merkle.State, fs.File, bool, error) {
	statePath := cachePath + merkle.StateExt
	stateOpts := func(so *merkle.StateOptions) {
		so.Codec = o.codec
		so.FS = o.fs
	}

	// An explicit reference path is loaded up front so that a resumed state
	// is checked against it like an injected reference.
	if o.reference == nil && o.referencePath != "" {
		ref, err := merkle.LoadReferenceFS(o.fs, o.referencePath)
		if err != nil {
			return nil, nil, false, err
		}
		o.reference = ref
	}

	if fs.Exists(o.fs, statePath) || fs.Exists(o.fs, cachePath) {
		state, cache, err := resumeCache(o, cachePath, size, stateOpts)
		if err == nil {
			return state, cache, true, nil
		}
		o.logger.LogDiscard(ctx, cachePath, err)
		_ = o.fs.Remove(statePath)
		_ = o.fs.Remove(cachePath)
	}

	ref, persist, err := resolveReference(ctx, o, t, cachePath, remote, size)
	if err != nil {
		return nil, nil, false, err
	}
	if got := ref.Shape().ContentSize(); got != size {
		return nil, nil, false, fmt.Errorf("%w: reference describes %d bytes, source has %d", ErrReferenceMismatch, got, size)
	}
	if persist {
		if err := ref.Save(cachePath+merkle.ReferenceExt, func(so *merkle.SaveOptions) {
			so.Codec = o.codec
			so.FS = o.fs
		}); err != nil {
			o.logger.WarnContext(ctx, "keeping reference copy failed", "cache", cachePath, "error", err)
		}
	}

	cache, err := o.fs.OpenFile(cachePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, false, err
	}
	if err := fs.Preallocate(cache, size); err != nil {
		_ = cache.Close()
		return nil, nil, false, fmt.Errorf("vecfetch: size cache file: %w", err)
	}
	state, err := ref.CreateEmptyState(statePath, stateOpts)
	if err != nil {
		_ = cache.Close()
		return nil, nil, false, err
	}
	return state, cache, false, nil
}

func resumeCache(o *options, cachePath string, size int64, stateOpts func(*merkle.StateOptions)) (*merkle.State, fs.File, error) {
	state, err := merkle.LoadState(cachePath+merkle.StateExt, stateOpts)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*merkle.State, fs.File, error) {
		_ = state.Close()
		return nil, nil, err
	}
	if got := state.Shape().ContentSize(); got != size {
		return fail(fmt.Errorf("%w: state describes %d bytes, source has %d", ErrReferenceMismatch, got, size))
	}
	if o.reference != nil && !state.Matches(o.reference) {
		return fail(fmt.Errorf("%w: state root differs from the supplied reference", ErrReferenceMismatch))
	}

	info, err := o.fs.Stat(cachePath)
	if err != nil {
		return fail(err)
	}
	if info.Size() != size {
		return fail(fmt.Errorf("vecfetch: cache file has %d bytes, want %d", info.Size(), size))
	}
	cache, err := o.fs.OpenFile(cachePath, os.O_RDWR, 0o644)
	if err != nil {
		return fail(err)
	}
	return state, cache, nil
}

// Size returns the content length.
func (c *Channel) Size() int64 { return c.shape.ContentSize() }

// Shape returns the tree geometry of the content.
func (c *Channel) Shape() merkle.Shape { return c.shape }

// Root returns the root hash the channel verifies against.
func (c *Channel) Root() merkle.Hash { return c.state.Root() }

// Path returns the cache file path.
func (c *Channel) Path() string { return c.path }

// IsComplete reports whether every leaf is cached.
func (c *Channel) IsComplete() bool { return c.state.IsComplete() }

// ReadAt reads len(p) bytes at off into p, downloading missing leaves of
// the range first. It waits only for the leaves the range touches.
//
// A range extending past Size is truncated and the shorter count returned
// without error. Reading at or past Size returns 0, io.EOF. ctx bounds the
// wait; downloads already started continue for later readers.
func (c *Channel) ReadAt(ctx context.Context, p []byte, off int64) (n int, err error) {
	start := time.Now()
	defer func() { c.metrics.RecordRead(n, time.Since(start), err) }()

	if c.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidOffset, off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	size := c.shape.ContentSize()
	if off >= size {
		return 0, io.EOF
	}
	length := min(int64(len(p)), size-off)

	if err := c.ensure(ctx, off, length); err != nil {
		return 0, err
	}
	return c.copyOut(p[:length], off)
}

func (c *Channel) copyOut(p []byte, off int64) (int, error) {
	c.life.RLock()
	defer c.life.RUnlock()
	if c.closed.Load() {
		return 0, ErrClosed
	}

	h := c.locks.RLock(off, int64(len(p)))
	defer h.Unlock()
	n, err := c.cache.ReadAt(p, off)
	if n == len(p) {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return n, fmt.Errorf("vecfetch: read cache: %w", err)
}

// ensure makes every leaf of [off, off+length) valid.
func (c *Channel) ensure(ctx context.Context, off, length int64) error {
	first, last := c.shape.LeafRange(off, length)
	for round := 0; ; round++ {
		if c.rangeValid(first, last) {
			return nil
		}
		if c.closed.Load() {
			return ErrClosed
		}
		if round == c.opts.readRounds {
			return fmt.Errorf("vecfetch: leaves %d-%d still missing after %d rounds", first, last, round)
		}
		tasks := c.opts.scheduler.Schedule(off, length, c.shape, c.state, c.queue)
		if err := awaitLeaves(ctx, tasks, first, last); err != nil {
			return translateError(err)
		}
	}
}

func (c *Channel) rangeValid(first, last int) bool {
	for leaf := first; leaf <= last; leaf++ {
		if !c.state.IsValid(leaf) {
			return false
		}
	}
	return true
}

// awaitLeaves waits for the futures of leaves in [first, last] only. Prefetch
// work scheduled alongside is left running.
func awaitLeaves(ctx context.Context, tasks []*queue.Task, first, last int) error {
	for _, t := range tasks {
		for leaf, f := range t.LeafFutures {
			if leaf < first || leaf > last {
				continue
			}
			if err := f.Wait(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReaderAt returns an io.ReaderAt bound to ctx. Short reads at the end of
// the content report io.EOF as io.ReaderAt requires.
func (c *Channel) ReaderAt(ctx context.Context) io.ReaderAt {
	return &readerAt{ctx: ctx, c: c}
}

type readerAt struct {
	ctx context.Context
	c   *Channel
}

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.c.ReadAt(r.ctx, p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Force makes the state durable. When metadata is true the cache file is
// synced first so that no leaf is recorded valid ahead of its bytes.
func (c *Channel) Force(metadata bool) error {
	c.life.RLock()
	defer c.life.RUnlock()
	if c.closed.Load() {
		return ErrClosed
	}
	if metadata {
		if err := c.cache.Sync(); err != nil {
			return fmt.Errorf("vecfetch: sync cache: %w", err)
		}
	}
	return c.state.Flush()
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Size:              c.shape.ContentSize(),
		ChunkSize:         c.shape.ChunkSize(),
		Leaves:            c.shape.LeafCount(),
		ValidLeaves:       c.state.ValidCount(),
		Queue:             c.queue.Stats(),
		Fetches:           c.fetches.Load(),
		FetchedBytes:      c.fetchedBytes.Load(),
		IntegrityFailures: c.integrityFailures.Load(),
		TransportFailures: c.transportFailures.Load(),
	}
}

// Close stops downloads, flushes the state and releases the cache file and
// transport. Pending reads fail with ErrClosed. Close is idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.queue.Close()
		c.workers.Wait()

		c.life.Lock()
		defer c.life.Unlock()

		var errs []error
		if err := c.cache.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("vecfetch: sync cache: %w", err))
		}
		if err := c.state.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := c.cache.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := c.transport.Close(); err != nil {
			errs = append(errs, err)
		}
		c.closeErr = errors.Join(errs...)
		c.logger.LogClose(context.Background(), c.path, c.state.ValidCount(), c.closeErr)
	})
	return c.closeErr
}
