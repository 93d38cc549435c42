package merkle

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/hupe1980/vecfetch/codec"
	"github.com/hupe1980/vecfetch/internal/fs"
	"github.com/hupe1980/vecfetch/internal/hash"
)

const (
	// ReferenceExt is the conventional suffix of reference artifacts.
	ReferenceExt = ".mref"
	// StateExt is the conventional suffix of state artifacts.
	StateExt = ".mrkl"

	referenceMagic = 0x4652454D // "MREF"
	stateMagic     = 0x4C4B524D // "MRKL"
	formatVersion  = 1

	headerSize = 40
)

// header is the fixed prefix of both artifacts.
//
// Layout (little endian):
//
//	magic      u32
//	version    u16
//	algorithm  u8
//	codec      u8
//	content    u64
//	chunk      u64
//	rawLen     u32
//	storedLen  u32
//	crc        u32   CRC32C of the stored payload
//	reserved   u32
type header struct {
	magic     uint32
	version   uint16
	algorithm hash.Algorithm
	codec     codec.ID
	content   int64
	chunk     int64
	rawLen    uint32
	storedLen uint32
	crc       uint32
}

func (h *header) marshal() []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(b[0:4], h.magic)
	binary.LittleEndian.PutUint16(b[4:6], h.version)
	b[6] = byte(h.algorithm)
	b[7] = byte(h.codec)
	binary.LittleEndian.PutUint64(b[8:16], uint64(h.content))
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.chunk))
	binary.LittleEndian.PutUint32(b[24:28], h.rawLen)
	binary.LittleEndian.PutUint32(b[28:32], h.storedLen)
	binary.LittleEndian.PutUint32(b[32:36], h.crc)
	return b
}

func unmarshalHeader(b []byte) header {
	return header{
		magic:     binary.LittleEndian.Uint32(b[0:4]),
		version:   binary.LittleEndian.Uint16(b[4:6]),
		algorithm: hash.Algorithm(b[6]),
		codec:     codec.ID(b[7]),
		content:   int64(binary.LittleEndian.Uint64(b[8:16])),
		chunk:     int64(binary.LittleEndian.Uint64(b[16:24])),
		rawLen:    binary.LittleEndian.Uint32(b[24:28]),
		storedLen: binary.LittleEndian.Uint32(b[28:32]),
		crc:       binary.LittleEndian.Uint32(b[32:36]),
	}
}

// encodeArtifact frames payload with a header for the given geometry.
func encodeArtifact(magic uint32, alg hash.Algorithm, c codec.Codec, shape Shape, payload []byte) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("merkle: payload of %d bytes exceeds the artifact limit", len(payload))
	}
	stored, err := c.Encode(nil, payload)
	if err != nil {
		return nil, err
	}
	if uint64(len(stored)) > math.MaxUint32 {
		return nil, fmt.Errorf("merkle: encoded payload of %d bytes exceeds the artifact limit", len(stored))
	}

	h := header{
		magic:     magic,
		version:   formatVersion,
		algorithm: alg,
		codec:     c.ID(),
		content:   shape.ContentSize(),
		chunk:     shape.ChunkSize(),
		rawLen:    uint32(len(payload)),
		storedLen: uint32(len(stored)),
		crc:       hash.CRC32C(stored),
	}

	out := make([]byte, 0, headerSize+len(stored))
	out = append(out, h.marshal()...)
	return append(out, stored...), nil
}

// payloadBounds returns the smallest and largest decoded payload length an
// artifact of the given shape may declare.
type payloadBounds func(Shape) (lo, hi int64)

// referencePayload is exactly one digest per node.
func referencePayload(s Shape) (lo, hi int64) {
	n := int64(s.NodeCount()) * hash.Size
	return n, n
}

// statePayload is one digest per leaf, the root and a roaring bitmap over
// the leaf indices. The bitmap holds at most one 8 KiB container per 65536
// leaves plus headers.
func statePayload(s Shape) (lo, hi int64) {
	lo = int64(s.LeafCount()+1) * hash.Size
	containers := int64(s.LeafCount())/65536 + 1
	return lo, lo + 16 + containers*(8192+16)
}

// decodeArtifact validates the framing of data and returns the decoded
// payload together with the artifact's shape and digest algorithm. The
// declared payload length is checked against bounds before anything is
// decompressed.
func decodeArtifact(path string, magic uint32, data []byte, bounds payloadBounds) (Shape, hash.Algorithm, []byte, error) {
	if len(data) == 0 {
		return Shape{}, 0, nil, formatErrorf(path, nil, "empty file")
	}
	if len(data) < headerSize {
		return Shape{}, 0, nil, formatErrorf(path, nil, "truncated header (%d bytes)", len(data))
	}

	h := unmarshalHeader(data[:headerSize])
	if h.magic != magic {
		return Shape{}, 0, nil, formatErrorf(path, nil, "bad magic %#x", h.magic)
	}
	if h.version != formatVersion {
		return Shape{}, 0, nil, formatErrorf(path, nil, "unsupported version %d", h.version)
	}
	if !h.algorithm.Valid() {
		return Shape{}, 0, nil, formatErrorf(path, nil, "unknown digest algorithm %d", h.algorithm)
	}
	c, ok := codec.ByID(h.codec)
	if !ok {
		return Shape{}, 0, nil, formatErrorf(path, nil, "unknown payload codec %d", h.codec)
	}

	shape, err := NewShape(h.content, h.chunk)
	if err != nil {
		return Shape{}, 0, nil, formatErrorf(path, err, "invalid geometry")
	}

	stored := data[headerSize:]
	if uint64(len(stored)) != uint64(h.storedLen) {
		return Shape{}, 0, nil, formatErrorf(path, nil, "payload length %d, header says %d", len(stored), h.storedLen)
	}
	if hash.CRC32C(stored) != h.crc {
		return Shape{}, 0, nil, formatErrorf(path, nil, "payload checksum mismatch")
	}

	if lo, hi := bounds(shape); int64(h.rawLen) < lo || int64(h.rawLen) > hi {
		return Shape{}, 0, nil, formatErrorf(path, nil, "header declares %d payload bytes, %s needs %d to %d", h.rawLen, shape, lo, hi)
	}

	payload, err := c.Decode(stored, int(h.rawLen))
	if err != nil {
		return Shape{}, 0, nil, formatErrorf(path, err, "payload decode")
	}
	return shape, h.algorithm, payload, nil
}

// readArtifact reads path, mapping a missing file to a FormatError.
func readArtifact(fsys fs.FileSystem, path string) ([]byte, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, formatErrorf(path, err, "missing file")
		}
		return nil, formatErrorf(path, err, "read failed")
	}
	return data, nil
}

func putDigests(dst []byte, digests []hash.Digest) []byte {
	for i := range digests {
		dst = append(dst, digests[i][:]...)
	}
	return dst
}

func getDigests(src []byte, n int) []hash.Digest {
	out := make([]hash.Digest, n)
	for i := range out {
		copy(out[i][:], src[i*hash.Size:(i+1)*hash.Size])
	}
	return out
}
