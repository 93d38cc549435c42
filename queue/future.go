package queue

import (
	"context"
	"sync"
)

// Future is a one-shot completion signal carrying an error.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewFuture returns an incomplete future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed when the future completes.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the completion error. It is only meaningful after Done.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// IsDone reports whether the future has completed.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future completes or ctx is done. Cancelling ctx
// abandons the wait only; the underlying work continues.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// complete resolves the future. Later calls are no-ops.
func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}
