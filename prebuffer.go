package vecfetch

import (
	"context"
	"fmt"
	"time"
)

// Prebuffer tracks a background download of a byte range into the cache.
type Prebuffer struct {
	c           *Channel
	first, last int
	done        chan struct{}
	err         error
}

// Prebuffer downloads every missing leaf of [off, off+length) without
// copying data to the caller. The range is clipped to Size. A range that
// is already cached completes immediately without transport calls.
//
// ctx bounds the background wait, not downloads shared with other readers.
func (c *Channel) Prebuffer(ctx context.Context, off, length int64) *Prebuffer {
	p := &Prebuffer{c: c, first: 0, last: -1, done: make(chan struct{})}
	switch {
	case c.closed.Load():
		p.finish(ErrClosed)
		return p
	case off < 0 || length < 0:
		p.finish(fmt.Errorf("%w: [%d,+%d)", ErrInvalidOffset, off, length))
		return p
	}
	size := c.shape.ContentSize()
	if off >= size || length == 0 {
		p.finish(nil)
		return p
	}
	length = min(length, size-off)
	p.first, p.last = c.shape.LeafRange(off, length)
	if c.rangeValid(p.first, p.last) {
		p.finish(nil)
		return p
	}

	go func() {
		start := time.Now()
		err := c.ensure(ctx, off, length)
		c.metrics.RecordPrebuffer(p.Total(), time.Since(start), err)
		c.logger.LogPrebuffer(ctx, off, length, p.Total(), err)
		p.finish(err)
	}()
	return p
}

func (p *Prebuffer) finish(err error) {
	p.err = err
	close(p.done)
}

// Done is closed when the prebuffer finishes.
func (p *Prebuffer) Done() <-chan struct{} { return p.done }

// Err returns the outcome once Done is closed, nil before.
func (p *Prebuffer) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the prebuffer finishes or ctx is done.
func (p *Prebuffer) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Total returns the number of leaves the range covers.
func (p *Prebuffer) Total() int { return p.last - p.first + 1 }

// Progress returns how many of the covered leaves are cached.
func (p *Prebuffer) Progress() (current, total int) {
	for leaf := p.first; leaf <= p.last; leaf++ {
		if p.c.state.IsValid(leaf) {
			current++
		}
	}
	return current, p.Total()
}

// Percent returns Progress as a percentage. An empty range is 100.
func (p *Prebuffer) Percent() float64 {
	current, total := p.Progress()
	if total == 0 {
		return 100
	}
	return 100 * float64(current) / float64(total)
}
