package testutil

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReset(t *testing.T) {
	rng := NewRNG(42)
	a := rng.Bytes(64)
	rng.Reset()
	b := rng.Bytes(64)
	assert.Equal(t, a, b)
	assert.Equal(t, int64(42), rng.Seed())
}

func TestPayloadDeterministic(t *testing.T) {
	assert.Equal(t, Payload(7, 1000), Payload(7, 1000))
	assert.NotEqual(t, Payload(7, 1000), Payload(8, 1000))
}

func TestRange(t *testing.T) {
	rng := NewRNG(1)
	for range 1000 {
		off, n := rng.Range(500, 64)
		assert.GreaterOrEqual(t, off, int64(0))
		assert.GreaterOrEqual(t, n, int64(1))
		assert.LessOrEqual(t, n, int64(64))
		assert.LessOrEqual(t, off+n, int64(500))
	}
}

func TestFvecPayload(t *testing.T) {
	data := FvecPayload(3, 10, 16)
	require.Len(t, data, 10*(4+16*4))
	for i := range 10 {
		assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(data[i*(4+64):]))
	}
}

func TestSlowReader(t *testing.T) {
	data := Payload(1, 1000)
	r := NewSlowReader(data, 7)

	buf := make([]byte, 100)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data[7:], rest)
}

func TestCountingTransport(t *testing.T) {
	ctx := context.Background()
	data := Payload(2, 4096)
	tr := NewCountingTransport(data)

	got, err := tr.FetchRange(ctx, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, data[100:150], got)
	assert.Equal(t, 1, tr.Calls())
	assert.Equal(t, int64(50), tr.BytesServed())

	_, err = tr.FetchRange(ctx, 4000, 200)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	boom := errors.New("boom")
	tr.FailNext(1, boom)
	_, err = tr.FetchRange(ctx, 0, 10)
	assert.ErrorIs(t, err, boom)
	_, err = tr.FetchRange(ctx, 0, 10)
	assert.NoError(t, err)

	tr.Tamper(func(_ int64, b []byte) { b[0] ^= 0xFF })
	got, err = tr.FetchRange(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, data[0]^0xFF, got[0])
	assert.Equal(t, data[0], Payload(2, 1)[0], "source must be untouched")

	tr.Tamper(nil)
	tr.ShortNext(1)
	got, err = tr.FetchRange(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, data[:9], got)
	got, err = tr.FetchRange(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, got, 10)

	assert.Equal(t, []FetchRecord{{100, 50}, {4000, 200}, {0, 10}, {0, 10}, {0, 1}, {0, 10}, {0, 10}}, tr.Fetches())

	tr.Reset()
	assert.Zero(t, tr.Calls())

	require.NoError(t, tr.Close())
	_, err = tr.FetchRange(ctx, 0, 1)
	assert.Error(t, err)
}

func TestCountingTransportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCountingTransport(Payload(1, 10)).FetchRange(ctx, 0, 5)
	assert.ErrorIs(t, err, context.Canceled)
}
