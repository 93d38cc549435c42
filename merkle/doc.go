// Package merkle implements the hash tree that lets vecfetch download,
// verify and persist only the bytes a reader needs.
//
// # Model
//
//   - [Shape]: pure geometry over a content length and a chunk size. Leaves
//     are fixed-size chunks (the last one may be short); internal nodes form
//     a complete binary tree over the leaves, padded to a power of two.
//   - [Reference]: the immutable, fully populated hash tree of a known-good
//     source. Saved as a ".mref" artifact.
//   - [State]: the mutable per-leaf validity record derived from a
//     Reference. Saved as a ".mrkl" artifact. The only way to mark a leaf
//     valid is [State.SaveIfValid], which hashes candidate bytes first.
//
// # Tree layout
//
// Nodes use heap order: the root is node 0, the children of node i are
// 2i+1 and 2i+2. With capLeaf the next power of two at or above the leaf
// count, leaf i lives at node capLeaf-1+i. Padding leaves hash to the zero
// digest and internal nodes hash the concatenation of their children.
//
//	                    0
//	           1                 2
//	      3        4        5        6
//	    L0  L1   L2  L3   L4  pad  pad  pad
//
// # Artifacts
//
// Both artifacts share a 40-byte little-endian header (magic, version,
// digest algorithm, payload codec, content size, chunk size, raw and stored
// payload lengths, CRC32C of the stored payload). Loading a missing, empty,
// truncated or otherwise corrupt artifact fails with an error matching
// [ErrFormat]; nothing is ever partially loaded.
package merkle
