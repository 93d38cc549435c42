package vecfetch

import (
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/vecfetch/queue"
)

// work runs download tasks until the channel closes.
func (c *Channel) work() {
	defer c.workers.Done()
	for {
		t, err := c.queue.Pop(c.ctx)
		if err != nil {
			return
		}
		c.execute(t)
	}
}

// execute downloads the leaves t owns as one span and validates each leaf
// independently. A leaf that fails verification does not affect the others.
func (c *Channel) execute(t *queue.Task) {
	var pending []int
	for _, leaf := range t.OwnedLeaves() {
		if c.state.IsValid(leaf) {
			c.queue.CompleteLeaf(t, leaf, nil)
			continue
		}
		pending = append(pending, leaf)
	}
	if len(pending) == 0 {
		c.queue.CompleteTask(t, nil)
		return
	}

	off, _ := c.shape.ChunkBoundary(pending[0])
	lastStart, lastLen := c.shape.ChunkBoundary(pending[len(pending)-1])
	length := lastStart + lastLen - off

	data, err := c.fetch(off, length)
	c.logger.LogFetch(c.ctx, t.Node, off, length, err)
	if err != nil {
		c.queue.CompleteTask(t, err)
		return
	}

	var firstErr error
	for _, leaf := range pending {
		start, n := c.shape.ChunkBoundary(leaf)
		chunk := data[start-off : start-off+n]
		err := c.persist(t.Node, leaf, chunk, start)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		c.queue.CompleteLeaf(t, leaf, err)
	}
	c.queue.CompleteTask(t, firstErr)
}

// fetch downloads [off, off+length) within the fetch and bandwidth limits.
func (c *Channel) fetch(off, length int64) ([]byte, error) {
	if err := c.rc.AcquireFetch(c.ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	defer c.rc.ReleaseFetch()
	if err := c.rc.AcquireIO(c.ctx, int(length)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClosed, err)
	}

	start := time.Now()
	data, err := c.transport.FetchRange(c.ctx, off, length)
	if err == nil && int64(len(data)) != length {
		err = fmt.Errorf("got %d bytes: %w", len(data), io.ErrUnexpectedEOF)
	}
	c.metrics.RecordFetch(length, time.Since(start), err)
	c.fetches.Add(1)
	if err != nil {
		if c.ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrClosed, err)
		}
		c.transportFailures.Add(1)
		return nil, &TransportError{Offset: off, Length: length, cause: err}
	}
	c.fetchedBytes.Add(length)
	return data, nil
}

// persist verifies chunk against the expected hash of leaf and writes it to
// the cache under the region write lock.
func (c *Channel) persist(node, leaf int, chunk []byte, off int64) error {
	ok, err := c.state.SaveIfValid(leaf, chunk, func(b []byte) error {
		h := c.locks.Lock(off, int64(len(b)))
		defer h.Unlock()
		_, err := c.cache.WriteAt(b, off)
		return err
	})
	if err != nil {
		return fmt.Errorf("vecfetch: persist leaf %d: %w", leaf, err)
	}
	c.metrics.RecordVerify(ok)
	if !ok {
		c.integrityFailures.Add(1)
		c.logger.LogVerifyFailed(c.ctx, leaf, node)
		return &IntegrityError{Leaf: leaf, Node: node}
	}
	c.maybeFlush()
	return nil
}

func (c *Channel) maybeFlush() {
	if c.opts.flushInterval <= 0 {
		return
	}
	if c.sinceFlush.Add(1) < int64(c.opts.flushInterval) {
		return
	}
	c.sinceFlush.Store(0)
	err := c.cache.Sync()
	if err == nil {
		err = c.state.Flush()
	}
	if err != nil {
		c.logger.WarnContext(c.ctx, "periodic state flush failed", "error", err)
	}
}
