package resource

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxConcurrentFetches bounds parallel range requests when the
// configuration leaves it unset.
const DefaultMaxConcurrentFetches = 4

// Config holds resource limits.
type Config struct {
	// MaxConcurrentFetches is the maximum number of range requests in
	// flight. If 0, defaults to DefaultMaxConcurrentFetches.
	MaxConcurrentFetches int64

	// IOLimitBytesPerSec caps download throughput. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller governs download concurrency and bandwidth.
type Controller struct {
	cfg Config

	fetchSem *semaphore.Weighted
	inflight atomic.Int64

	ioLimiter *rate.Limiter
	ioBytes   atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}

	c := &Controller{
		cfg:      cfg,
		fetchSem: semaphore.NewWeighted(cfg.MaxConcurrentFetches),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// MaxConcurrentFetches returns the configured fetch slot count.
func (c *Controller) MaxConcurrentFetches() int {
	if c == nil {
		return DefaultMaxConcurrentFetches
	}
	return int(c.cfg.MaxConcurrentFetches)
}

// AcquireFetch reserves a fetch slot. Blocks if all slots are busy.
func (c *Controller) AcquireFetch(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.fetchSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.inflight.Add(1)
	return nil
}

// TryAcquireFetch reserves a fetch slot without blocking.
func (c *Controller) TryAcquireFetch() bool {
	if c == nil {
		return true
	}
	if !c.fetchSem.TryAcquire(1) {
		return false
	}
	c.inflight.Add(1)
	return true
}

// ReleaseFetch releases a fetch slot.
func (c *Controller) ReleaseFetch() {
	if c == nil {
		return
	}
	c.inflight.Add(-1)
	c.fetchSem.Release(1)
}

// InFlight returns the number of held fetch slots.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inflight.Load()
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Requests larger than one second of budget are admitted in installments.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	c.ioBytes.Add(int64(bytes))
	if c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// TryAcquireIO attempts to acquire IO tokens without blocking.
// Returns true if tokens were acquired, false otherwise.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}
	if !c.ioLimiter.AllowN(time.Now(), bytes) {
		return false
	}
	c.ioBytes.Add(int64(bytes))
	return true
}

// IOBytes returns the number of bytes admitted by AcquireIO and TryAcquireIO.
func (c *Controller) IOBytes() int64 {
	if c == nil {
		return 0
	}
	return c.ioBytes.Load()
}
