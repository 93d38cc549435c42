// Package hash provides the digests used by vecfetch for content verification
// and artifact integrity.
//
// # Leaf digests
//
// Merkle leaves and internal nodes are hashed with a 32-byte digest selected
// by [Algorithm]:
//
//   - [SHA256]: the default, FIPS approved and universally available
//   - [BLAKE3]: considerably faster on large chunks, same digest width
//
// The algorithm id is stored in every artifact header so a reference built
// with one algorithm is never validated with another.
//
// # Artifact checksums
//
// Artifact payloads carry a CRC32-Castagnoli checksum. CRC32C only guards
// against accidental corruption of the artifact file itself; tamper
// resistance comes from the Merkle digests.
//
//	checksum := hash.CRC32C(payload)
package hash
