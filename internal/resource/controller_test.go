package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_FetchSlots(t *testing.T) {
	c := NewController(Config{MaxConcurrentFetches: 2})
	assert.Equal(t, 2, c.MaxConcurrentFetches())

	require.NoError(t, c.AcquireFetch(t.Context()))
	require.NoError(t, c.AcquireFetch(t.Context()))
	assert.Equal(t, int64(2), c.InFlight())

	assert.False(t, c.TryAcquireFetch())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireFetch(ctx), context.DeadlineExceeded)

	c.ReleaseFetch()
	assert.True(t, c.TryAcquireFetch())
	assert.Equal(t, int64(2), c.InFlight())
}

func TestController_Defaults(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, DefaultMaxConcurrentFetches, c.MaxConcurrentFetches())
	require.NoError(t, c.AcquireIO(t.Context(), 1<<30))
	assert.Equal(t, int64(1<<30), c.IOBytes())
}

func TestController_NilChecks(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquireFetch(context.Background()))
	assert.True(t, c.TryAcquireFetch())
	c.ReleaseFetch()
	assert.NoError(t, c.AcquireIO(context.Background(), 10))
	assert.True(t, c.TryAcquireIO(10))
	assert.Zero(t, c.InFlight())
	assert.Zero(t, c.IOBytes())
}

func TestController_IOLimit(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1000})

	// Burst is available immediately.
	assert.True(t, c.TryAcquireIO(1000))
	assert.False(t, c.TryAcquireIO(500))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireIO(ctx, 900))
}

func TestController_IOLargerThanBurst(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 100_000})
	start := time.Now()
	require.NoError(t, c.AcquireIO(t.Context(), 150_000))
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestRateLimitedReader(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	data := bytes.Repeat([]byte("x"), 4096)

	out, err := io.ReadAll(NewRateLimitedReader(t.Context(), bytes.NewReader(data), c))
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, int64(4096), c.IOBytes())
}
