package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// Size is the width of every digest in bytes.
const Size = 32

// Digest is a 32-byte content digest.
type Digest [Size]byte

// IsZero reports whether d is the all-zero digest used for padding nodes.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// String returns the lowercase hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 8 hex characters, useful in log lines.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:4])
}

// Algorithm identifies a digest function. The numeric value is persisted in
// artifact headers and must never change.
type Algorithm uint8

const (
	// SHA256 is crypto/sha256.
	SHA256 Algorithm = 1
	// BLAKE3 is the 256-bit BLAKE3 hash.
	BLAKE3 Algorithm = 2
)

// String returns the stable name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case SHA256:
		return "sha256"
	case BLAKE3:
		return "blake3"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	return a == SHA256 || a == BLAKE3
}

// ParseAlgorithm returns the algorithm for its stable name.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "sha256", "sha-256", "":
		return SHA256, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return 0, fmt.Errorf("hash: unknown algorithm %q", name)
	}
}

// New returns a streaming hash.Hash for the algorithm.
// Unknown algorithms fall back to SHA256.
func (a Algorithm) New() hash.Hash {
	if a == BLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

// Sum computes the digest of data.
func (a Algorithm) Sum(data []byte) Digest {
	if a == BLAKE3 {
		return Digest(blake3.Sum256(data))
	}
	return Digest(sha256.Sum256(data))
}

// SumPair computes the digest of left || right without an intermediate
// allocation of the concatenation.
func (a Algorithm) SumPair(left, right Digest) Digest {
	var buf [2 * Size]byte
	copy(buf[:Size], left[:])
	copy(buf[Size:], right[:])
	return a.Sum(buf[:])
}
