package merkle

import (
	"fmt"
	"math/bits"
)

// DefaultChunkSize is the leaf size used when none is configured (1 MiB).
const DefaultChunkSize int64 = 1 << 20

// Shape is the geometry of a content's division into leaves and the binary
// tree built over them. A Shape is immutable and cheap to copy.
type Shape struct {
	contentSize int64
	chunkSize   int64
	leafCount   int
	capLeaf     int
}

// MaxLeaves is the largest supported leaf count. It keeps every node
// digest of a reference artifact within the 32-bit payload length of the
// artifact header (a 64 TiB source at the default chunk size).
const MaxLeaves = 1 << 26

// NewShape returns the shape for contentSize bytes split into chunkSize
// leaves. chunkSize must be a power of two. A contentSize of zero yields a
// single empty leaf.
func NewShape(contentSize, chunkSize int64) (Shape, error) {
	if contentSize < 0 {
		return Shape{}, fmt.Errorf("%w: content size %d", ErrInvalidShape, contentSize)
	}
	if chunkSize <= 0 || chunkSize&(chunkSize-1) != 0 {
		return Shape{}, fmt.Errorf("%w: chunk size %d is not a positive power of two", ErrInvalidShape, chunkSize)
	}

	leaves := (contentSize + chunkSize - 1) / chunkSize
	if leaves == 0 {
		leaves = 1
	}
	if leaves > MaxLeaves {
		return Shape{}, fmt.Errorf("%w: %d leaves exceed the limit of %d", ErrInvalidShape, leaves, MaxLeaves)
	}

	return Shape{
		contentSize: contentSize,
		chunkSize:   chunkSize,
		leafCount:   int(leaves),
		capLeaf:     1 << bits.Len64(uint64(leaves-1)),
	}, nil
}

// ContentSize returns the total number of content bytes.
func (s Shape) ContentSize() int64 { return s.contentSize }

// ChunkSize returns the leaf size in bytes.
func (s Shape) ChunkSize() int64 { return s.chunkSize }

// LeafCount returns the number of real (non-padding) leaves.
func (s Shape) LeafCount() int { return s.leafCount }

// CapLeaf returns the padded leaf count, a power of two.
func (s Shape) CapLeaf() int { return s.capLeaf }

// NodeCount returns the number of nodes in the padded tree.
func (s Shape) NodeCount() int { return 2*s.capLeaf - 1 }

// LeafOffset returns the node index of leaf 0.
func (s Shape) LeafOffset() int { return s.capLeaf - 1 }

// ChunkBoundary returns the byte range [start, start+length) of a leaf.
// The final leaf is short when the content size is not a multiple of the
// chunk size.
func (s Shape) ChunkBoundary(leaf int) (start, length int64) {
	start = int64(leaf) * s.chunkSize
	end := min(start+s.chunkSize, s.contentSize)
	if end < start {
		return start, 0
	}
	return start, end - start
}

// LeafForPosition returns the leaf containing byte pos. Positions past the
// end of the content map to the last leaf; callers validate bounds.
func (s Shape) LeafForPosition(pos int64) int {
	if pos <= 0 {
		return 0
	}
	leaf := pos / s.chunkSize
	if leaf >= int64(s.leafCount) {
		return s.leafCount - 1
	}
	return int(leaf)
}

// LeafRange returns the inclusive leaf range touched by [off, off+length).
// length must be positive.
func (s Shape) LeafRange(off, length int64) (first, last int) {
	return s.LeafForPosition(off), s.LeafForPosition(off + length - 1)
}

// IsLeaf reports whether node is in the leaf layer (including padding).
func (s Shape) IsLeaf(node int) bool {
	return node >= s.capLeaf-1 && node < s.NodeCount()
}

// IsPadding reports whether node lies entirely beyond the last real leaf.
func (s Shape) IsPadding(node int) bool {
	first, end := s.NodeLeafRange(node)
	return first >= end
}

// LeafNode returns the node index of a leaf.
func (s Shape) LeafNode(leaf int) int { return s.capLeaf - 1 + leaf }

// NodeLeaf returns the leaf index of a leaf node.
func (s Shape) NodeLeaf(node int) int { return node - (s.capLeaf - 1) }

// Parent returns the parent of node, or -1 for the root.
func (s Shape) Parent(node int) int {
	if node <= 0 {
		return -1
	}
	return (node - 1) / 2
}

// Children returns the two children of an internal node.
func (s Shape) Children(node int) (left, right int) {
	return 2*node + 1, 2*node + 2
}

// Sibling returns the other child of node's parent, or -1 for the root.
func (s Shape) Sibling(node int) int {
	if node <= 0 {
		return -1
	}
	if node%2 == 1 {
		return node + 1
	}
	return node - 1
}

// Level returns the depth of node (root is 0).
func (s Shape) Level(node int) int {
	return bits.Len(uint(node+1)) - 1
}

// NodeLeafRange returns the real leaves [first, end) below node. Padding
// nodes return an empty range.
func (s Shape) NodeLeafRange(node int) (first, end int) {
	level := s.Level(node)
	span := s.capLeaf >> level
	first = (node + 1 - 1<<level) * span
	end = min(first+span, s.leafCount)
	if first > s.leafCount {
		first = s.leafCount
	}
	return first, max(end, first)
}

// NodeSpan returns the number of leaf slots (including padding) below node.
func (s Shape) NodeSpan(node int) int {
	return s.capLeaf >> s.Level(node)
}

// NodeByteRange returns the content bytes covered by node.
func (s Shape) NodeByteRange(node int) (off, length int64) {
	first, end := s.NodeLeafRange(node)
	if first >= end {
		return int64(first) * s.chunkSize, 0
	}
	off, _ = s.ChunkBoundary(first)
	lastStart, lastLen := s.ChunkBoundary(end - 1)
	return off, lastStart + lastLen - off
}

// VerificationPath returns the node indices from leaf up to the root,
// inclusive of both.
func (s Shape) VerificationPath(leaf int) []int {
	path := make([]int, 0, bits.Len(uint(s.capLeaf)))
	for n := s.LeafNode(leaf); n >= 0; n = s.Parent(n) {
		path = append(path, n)
	}
	return path
}

// String returns a compact description of the shape.
func (s Shape) String() string {
	return fmt.Sprintf("shape{content=%d chunk=%d leaves=%d nodes=%d}",
		s.contentSize, s.chunkSize, s.leafCount, s.NodeCount())
}
