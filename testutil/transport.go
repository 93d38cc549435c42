package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrInjected is the default error returned by FailNext.
var ErrInjected = errors.New("testutil: injected transport failure")

// FetchRecord describes one FetchRange call.
type FetchRecord struct {
	Offset int64
	Length int64
}

// CountingTransport serves an in-memory source and records every range
// fetch. It satisfies the vecfetch transport contract and supports failure,
// latency and corruption injection.
type CountingTransport struct {
	mu       sync.Mutex
	data     []byte
	fetches  []FetchRecord
	bytes    int64
	failN    int
	failErr  error
	shortN   int
	tamper   func(off int64, b []byte)
	delay    time.Duration
	noRanges bool
	closed   bool
	inflight int
	peak     int
}

// NewCountingTransport returns a transport over data.
func NewCountingTransport(data []byte) *CountingTransport {
	return &CountingTransport{data: data}
}

// FailNext makes the next n fetches return err (ErrInjected if nil).
func (t *CountingTransport) FailNext(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failN = n
	t.failErr = err
}

// ShortNext makes the next n fetches return one byte less than requested,
// without an error.
func (t *CountingTransport) ShortNext(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shortN = n
}

// Tamper installs fn to mutate every served buffer. Pass nil to stop.
func (t *CountingTransport) Tamper(fn func(off int64, b []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tamper = fn
}

// SetDelay adds latency to every fetch.
func (t *CountingTransport) SetDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = d
}

// DisableRanges makes SupportsRangeRequests report false.
func (t *CountingTransport) DisableRanges() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.noRanges = true
}

// FetchRange returns length bytes at off unless a fault is injected.
func (t *CountingTransport) FetchRange(ctx context.Context, off, length int64) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("testutil: transport closed")
	}
	t.fetches = append(t.fetches, FetchRecord{Offset: off, Length: length})
	t.inflight++
	t.peak = max(t.peak, t.inflight)
	delay := t.delay
	var failErr error
	if t.failN > 0 {
		t.failN--
		failErr = t.failErr
	}
	tamper := t.tamper
	short := t.shortN > 0 && length > 0
	if short {
		t.shortN--
	}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inflight--
		t.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failErr != nil {
		return nil, failErr
	}
	if off < 0 || length < 0 || off+length > int64(len(t.data)) {
		return nil, fmt.Errorf("testutil: range [%d,+%d) outside %d bytes: %w", off, length, len(t.data), io.ErrUnexpectedEOF)
	}

	out := make([]byte, length)
	copy(out, t.data[off:off+length])
	if tamper != nil {
		tamper(off, out)
	}
	if short {
		out = out[:length-1]
	}

	t.mu.Lock()
	t.bytes += int64(len(out))
	t.mu.Unlock()
	return out, nil
}

// Size returns the source length.
func (t *CountingTransport) Size(context.Context) (int64, error) {
	return int64(len(t.data)), nil
}

// SupportsRangeRequests reports whether ranged fetches are honored.
func (t *CountingTransport) SupportsRangeRequests() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.noRanges
}

// Close marks the transport closed. Later fetches fail.
func (t *CountingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Calls returns the number of FetchRange calls so far.
func (t *CountingTransport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fetches)
}

// BytesServed returns the number of bytes successfully returned.
func (t *CountingTransport) BytesServed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

// Fetches returns a copy of the recorded calls.
func (t *CountingTransport) Fetches() []FetchRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]FetchRecord(nil), t.fetches...)
}

// PeakConcurrency returns the highest number of overlapping fetches seen.
func (t *CountingTransport) PeakConcurrency() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// Reset clears the recorded calls and byte counter.
func (t *CountingTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetches = nil
	t.bytes = 0
	t.peak = 0
}
