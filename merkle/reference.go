package merkle

import (
	"fmt"

	"github.com/hupe1980/vecfetch/codec"
	"github.com/hupe1980/vecfetch/internal/fs"
	"github.com/hupe1980/vecfetch/internal/hash"
)

// Hash is a 32-byte node digest.
type Hash = hash.Digest

// Reference is the complete, immutable hash tree of a known-good source.
// A Reference is safe for concurrent use.
type Reference struct {
	shape Shape
	alg   hash.Algorithm
	nodes []Hash
}

// newReference folds the leaf digests upward into a full tree.
func newReference(shape Shape, alg hash.Algorithm, leaves []Hash) *Reference {
	nodes := make([]Hash, shape.NodeCount())
	copy(nodes[shape.LeafOffset():], leaves)

	for i := shape.LeafOffset() - 1; i >= 0; i-- {
		l, r := shape.Children(i)
		nodes[i] = alg.SumPair(nodes[l], nodes[r])
	}
	return &Reference{shape: shape, alg: alg, nodes: nodes}
}

// Shape returns the tree geometry.
func (r *Reference) Shape() Shape { return r.shape }

// Algorithm returns the digest algorithm.
func (r *Reference) Algorithm() hash.Algorithm { return r.alg }

// Root returns the root digest.
func (r *Reference) Root() Hash { return r.nodes[0] }

// Hash returns the digest of an arbitrary node.
func (r *Reference) Hash(node int) (Hash, error) {
	if node < 0 || node >= len(r.nodes) {
		return Hash{}, fmt.Errorf("%w: node %d", ErrLeafOutOfRange, node)
	}
	return r.nodes[node], nil
}

// LeafHash returns the digest of a leaf.
func (r *Reference) LeafHash(leaf int) (Hash, error) {
	if leaf < 0 || leaf >= r.shape.LeafCount() {
		return Hash{}, fmt.Errorf("%w: leaf %d of %d", ErrLeafOutOfRange, leaf, r.shape.LeafCount())
	}
	return r.nodes[r.shape.LeafNode(leaf)], nil
}

// leafHashes returns a copy of the real leaf digests.
func (r *Reference) leafHashes() []Hash {
	off := r.shape.LeafOffset()
	out := make([]Hash, r.shape.LeafCount())
	copy(out, r.nodes[off:off+len(out)])
	return out
}

// VerifyLeaf reports whether data hashes to the expected digest of leaf.
func (r *Reference) VerifyLeaf(leaf int, data []byte) bool {
	want, err := r.LeafHash(leaf)
	if err != nil {
		return false
	}
	return r.alg.Sum(data) == want
}

// Proof returns the sibling digests from leaf up to (excluding) the root.
// Together with the leaf bytes and the root digest it proves membership
// without the rest of the tree; see VerifyProof.
func (r *Reference) Proof(leaf int) ([]Hash, error) {
	if leaf < 0 || leaf >= r.shape.LeafCount() {
		return nil, fmt.Errorf("%w: leaf %d of %d", ErrLeafOutOfRange, leaf, r.shape.LeafCount())
	}
	path := r.shape.VerificationPath(leaf)
	proof := make([]Hash, 0, len(path)-1)
	for _, n := range path[:len(path)-1] {
		proof = append(proof, r.nodes[r.shape.Sibling(n)])
	}
	return proof, nil
}

// Equal reports whether both references describe the same content: same
// geometry, same algorithm and identical leaf digests.
func (r *Reference) Equal(other *Reference) bool {
	if other == nil || r.shape != other.shape || r.alg != other.alg {
		return false
	}
	off := r.shape.LeafOffset()
	for i := range r.shape.LeafCount() {
		if r.nodes[off+i] != other.nodes[off+i] {
			return false
		}
	}
	return true
}

// MismatchedChunks returns the leaves whose digests differ between r and
// other, in ascending order.
func (r *Reference) MismatchedChunks(other *Reference) ([]int, error) {
	if other == nil || r.shape != other.shape {
		return nil, ErrShapeMismatch
	}
	if r.alg != other.alg {
		return nil, fmt.Errorf("%w: algorithms %s and %s", ErrShapeMismatch, r.alg, other.alg)
	}

	var out []int
	r.collectMismatches(other, 0, &out)
	return out, nil
}

// collectMismatches descends only into subtrees whose digests differ.
func (r *Reference) collectMismatches(other *Reference, node int, out *[]int) {
	if r.nodes[node] == other.nodes[node] {
		return
	}
	if r.shape.IsLeaf(node) {
		if leaf := r.shape.NodeLeaf(node); leaf < r.shape.LeafCount() {
			*out = append(*out, leaf)
		}
		return
	}
	left, right := r.shape.Children(node)
	r.collectMismatches(other, left, out)
	r.collectMismatches(other, right, out)
}

// CreateEmptyState creates a new all-invalid State for this reference and
// persists it at path. This is the only way to derive a State from a
// Reference.
func (r *Reference) CreateEmptyState(path string, optFns ...func(*StateOptions)) (*State, error) {
	return newStateFromReference(r, path, optFns...)
}

// SaveOptions configures artifact writes.
type SaveOptions struct {
	// Codec compresses the payload. Defaults to codec.Default.
	Codec codec.Codec
	// FS is the target filesystem. Defaults to fs.Default.
	FS fs.FileSystem
}

func applySaveOptions(optFns []func(*SaveOptions)) SaveOptions {
	o := SaveOptions{Codec: codec.Default, FS: fs.Default}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.Codec == nil {
		o.Codec = codec.Default
	}
	if o.FS == nil {
		o.FS = fs.Default
	}
	return o
}

// MarshalBinary encodes the reference artifact using the default codec.
func (r *Reference) MarshalBinary() ([]byte, error) {
	return r.Encode(codec.Default)
}

// Encode returns the reference artifact with its payload compressed by c.
func (r *Reference) Encode(c codec.Codec) ([]byte, error) {
	payload := putDigests(make([]byte, 0, len(r.nodes)*hash.Size), r.nodes)
	return encodeArtifact(referenceMagic, r.alg, c, r.shape, payload)
}

// Save atomically writes the reference artifact to path.
func (r *Reference) Save(path string, optFns ...func(*SaveOptions)) error {
	o := applySaveOptions(optFns)
	data, err := r.Encode(o.Codec)
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(o.FS, path, data)
}

// LoadReference reads a reference artifact. Missing, empty, truncated or
// inconsistent files fail with an error matching ErrFormat.
func LoadReference(path string) (*Reference, error) {
	return LoadReferenceFS(fs.Default, path)
}

// LoadReferenceFS is LoadReference on an explicit filesystem.
func LoadReferenceFS(fsys fs.FileSystem, path string) (*Reference, error) {
	data, err := readArtifact(fsys, path)
	if err != nil {
		return nil, err
	}
	return decodeReference(path, data)
}

// DecodeReference parses reference artifact bytes, e.g. downloaded from a
// remote store.
func DecodeReference(data []byte) (*Reference, error) {
	return decodeReference("", data)
}

func decodeReference(path string, data []byte) (*Reference, error) {
	shape, alg, payload, err := decodeArtifact(path, referenceMagic, data, referencePayload)
	if err != nil {
		return nil, err
	}
	if len(payload) != shape.NodeCount()*hash.Size {
		return nil, formatErrorf(path, nil, "payload holds %d bytes, %s needs %d",
			len(payload), shape, shape.NodeCount()*hash.Size)
	}

	nodes := getDigests(payload, shape.NodeCount())
	off := shape.LeafOffset()

	// The stored root must agree with the leaves, otherwise the artifact
	// was corrupted before it was checksummed.
	rebuilt := newReference(shape, alg, nodes[off:off+shape.LeafCount()])
	if rebuilt.Root() != nodes[0] {
		return nil, formatErrorf(path, nil, "root digest does not match leaves")
	}
	return rebuilt, nil
}
