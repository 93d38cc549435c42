// Package codec centralizes artifact payload compression.
//
// Reference (.mref) and state (.mrkl) artifacts record the codec id in their
// header. Changing the id of an existing codec breaks every artifact written
// with it, so ids are append-only.
package codec

import (
	"errors"
	"fmt"
)

// ErrCorrupt is returned when a payload cannot be decoded by its codec.
var ErrCorrupt = errors.New("codec: corrupt payload")

// ID is the persisted identifier of a codec.
type ID uint8

const (
	// IDNone stores payloads verbatim.
	IDNone ID = 0
	// IDZstd compresses payloads with zstd.
	IDZstd ID = 1
	// IDLZ4 compresses payloads with LZ4 block compression.
	IDLZ4 ID = 2
)

// Codec compresses and decompresses artifact payloads.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Encode appends the encoded form of src to dst.
	Encode(dst, src []byte) ([]byte, error)
	// Decode decodes src. rawLen is the expected decoded length.
	Decode(src []byte, rawLen int) ([]byte, error)
	// ID returns the persisted identifier.
	ID() ID
	// Name returns the stable name.
	Name() string
}

// Default is used when no codec is configured.
var Default Codec = None{}

// ByID returns a built-in codec by its persisted id.
func ByID(id ID) (Codec, bool) {
	switch id {
	case IDNone:
		return None{}, true
	case IDZstd:
		return Zstd{}, true
	case IDLZ4:
		return LZ4{}, true
	default:
		return nil, false
	}
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "none", "":
		return None{}, true
	case "zstd":
		return Zstd{}, true
	case "lz4":
		return LZ4{}, true
	default:
		return nil, false
	}
}

// None stores payloads uncompressed.
type None struct{}

// Encode implements Codec.
func (None) Encode(dst, src []byte) ([]byte, error) { return append(dst, src...), nil }

// Decode implements Codec.
func (None) Decode(src []byte, rawLen int) ([]byte, error) {
	if len(src) != rawLen {
		return nil, fmt.Errorf("%w: stored %d bytes, expected %d", ErrCorrupt, len(src), rawLen)
	}
	return src, nil
}

// ID implements Codec.
func (None) ID() ID { return IDNone }

// Name implements Codec.
func (None) Name() string { return "none" }
