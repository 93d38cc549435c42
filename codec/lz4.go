package codec

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

const maxLZ4Ratio = 255

// LZ4 compresses payloads with LZ4 block compression.
//
// Incompressible payloads are stored verbatim; Decode tells the two apart
// by comparing the stored length with the raw length.
type LZ4 struct{}

// Encode implements Codec.
func (LZ4) Encode(dst, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return dst, nil
	}
	buf := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, buf, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(src) {
		return append(dst, src...), nil
	}
	return append(dst, buf[:n]...), nil
}

// Decode implements Codec.
func (LZ4) Decode(src []byte, rawLen int) ([]byte, error) {
	if len(src) == rawLen {
		return src, nil
	}
	// An LZ4 block expands at most about 255 times.
	if rawLen > len(src)*maxLZ4Ratio+maxLZ4Ratio {
		return nil, fmt.Errorf("%w: %d stored bytes cannot expand to %d", ErrCorrupt, len(src), rawLen)
	}
	out := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(src, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if n != rawLen {
		return nil, fmt.Errorf("%w: decoded %d bytes, expected %d", ErrCorrupt, n, rawLen)
	}
	return out, nil
}

// ID implements Codec.
func (LZ4) ID() ID { return IDLZ4 }

// Name implements Codec.
func (LZ4) Name() string { return "lz4" }
