package testutil

import (
	"encoding/binary"
	"io"
	"math"
)

// Payload returns n deterministic pseudo-random bytes for seed.
func Payload(seed int64, n int) []byte {
	return NewRNG(seed).Bytes(n)
}

// FvecPayload encodes count uniform vectors of dim float32 components in the
// .fvec layout: each record is a little-endian int32 dimension followed by
// dim little-endian float32 values.
func FvecPayload(seed int64, count, dim int) []byte {
	rng := NewRNG(seed)
	rec := 4 + 4*dim
	out := make([]byte, count*rec)
	for i := range count {
		b := out[i*rec:]
		binary.LittleEndian.PutUint32(b, uint32(dim))
		for j := range dim {
			binary.LittleEndian.PutUint32(b[4+4*j:], math.Float32bits(rng.Float32()))
		}
	}
	return out
}

// SlowReader returns at most step bytes per Read, exercising callers that
// must loop on short reads.
type SlowReader struct {
	data []byte
	step int
}

// NewSlowReader returns a reader over data that yields step bytes at a time.
func NewSlowReader(data []byte, step int) *SlowReader {
	return &SlowReader{data: data, step: max(step, 1)}
}

// Read implements io.Reader.
func (r *SlowReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data[:min(r.step, len(r.data))])
	r.data = r.data[n:]
	return n, nil
}
