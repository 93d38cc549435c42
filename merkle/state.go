package merkle

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/vecfetch/codec"
	"github.com/hupe1980/vecfetch/internal/fs"
	"github.com/hupe1980/vecfetch/internal/hash"
)

// StateOptions configures where and how a State is persisted.
type StateOptions struct {
	// Codec compresses the artifact payload. Defaults to codec.Default.
	Codec codec.Codec
	// FS is the filesystem holding the artifact. Defaults to fs.Default.
	FS fs.FileSystem
}

func applyStateOptions(optFns []func(*StateOptions)) StateOptions {
	o := StateOptions{Codec: codec.Default, FS: fs.Default}
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

// State records which leaves of a Reference are verified-present in a local
// cache. Bits are only ever set, never cleared, and only by SaveIfValid.
//
// State is safe for concurrent use.
type State struct {
	path  string
	fsys  fs.FileSystem
	codec codec.Codec

	shape  Shape
	alg    hash.Algorithm
	root   Hash
	leaves []Hash // expected leaf digests; immutable after construction

	flushMu sync.Mutex

	mu         sync.Mutex
	valid      *roaring.Bitmap
	persisting map[int]chan struct{}
	inflight   sync.WaitGroup
	dirty      bool
	closed     bool
}

func newStateFromReference(ref *Reference, path string, optFns ...func(*StateOptions)) (*State, error) {
	o := applyStateOptions(optFns)
	s := &State{
		path:       path,
		fsys:       o.FS,
		codec:      o.Codec,
		shape:      ref.shape,
		alg:        ref.alg,
		root:       ref.Root(),
		leaves:     ref.leafHashes(),
		valid:      roaring.New(),
		persisting: make(map[int]chan struct{}),
		dirty:      true,
	}
	if err := s.Flush(); err != nil {
		return nil, fmt.Errorf("merkle: persist empty state: %w", err)
	}
	return s, nil
}

// LoadState reads a state artifact written by a previous Flush. Missing,
// empty or corrupt artifacts fail with an error matching ErrFormat.
func LoadState(path string, optFns ...func(*StateOptions)) (*State, error) {
	o := applyStateOptions(optFns)
	data, err := readArtifact(o.FS, path)
	if err != nil {
		return nil, err
	}
	s, err := decodeState(path, data)
	if err != nil {
		return nil, err
	}
	s.fsys = o.FS
	s.codec = o.Codec
	return s, nil
}

func decodeState(path string, data []byte) (*State, error) {
	shape, alg, payload, err := decodeArtifact(path, stateMagic, data, statePayload)
	if err != nil {
		return nil, err
	}

	digestBytes := (shape.LeafCount() + 1) * hash.Size
	if len(payload) < digestBytes {
		return nil, formatErrorf(path, nil, "payload holds %d bytes, digests need %d", len(payload), digestBytes)
	}

	leaves := getDigests(payload, shape.LeafCount())
	root := getDigests(payload[shape.LeafCount()*hash.Size:], 1)[0]
	if newReference(shape, alg, leaves).Root() != root {
		return nil, formatErrorf(path, nil, "root digest does not match leaves")
	}

	valid := roaring.New()
	if err := valid.UnmarshalBinary(payload[digestBytes:]); err != nil {
		return nil, formatErrorf(path, err, "valid-leaf bitmap")
	}
	if !valid.IsEmpty() && valid.Maximum() >= uint32(shape.LeafCount()) {
		return nil, formatErrorf(path, nil, "bitmap marks leaf %d of %d", valid.Maximum(), shape.LeafCount())
	}

	return &State{
		path:       path,
		shape:      shape,
		alg:        alg,
		root:       root,
		leaves:     leaves,
		valid:      valid,
		persisting: make(map[int]chan struct{}),
	}, nil
}

// Path returns the artifact location.
func (s *State) Path() string { return s.path }

// Shape returns the tree geometry.
func (s *State) Shape() Shape { return s.shape }

// Algorithm returns the digest algorithm.
func (s *State) Algorithm() hash.Algorithm { return s.alg }

// Root returns the root digest of the reference this state derives from.
func (s *State) Root() Hash { return s.root }

// LeafHash returns the expected digest of a leaf.
func (s *State) LeafHash(leaf int) (Hash, error) {
	if leaf < 0 || leaf >= len(s.leaves) {
		return Hash{}, fmt.Errorf("%w: leaf %d of %d", ErrLeafOutOfRange, leaf, len(s.leaves))
	}
	return s.leaves[leaf], nil
}

// Matches reports whether the state was derived from ref.
func (s *State) Matches(ref *Reference) bool {
	return ref != nil && ref.shape == s.shape && ref.alg == s.alg && ref.Root() == s.root
}

// SaveIfValid hashes data and compares it with the expected digest of leaf.
//
// On mismatch it returns false and changes nothing; onPersist is not called.
// On match it calls onPersist(data) exactly once, then marks the leaf valid
// and returns true. If onPersist fails the leaf stays invalid and its error
// is returned. A leaf that is already valid returns true without calling
// onPersist again; concurrent calls for the same leaf wait for the first.
func (s *State) SaveIfValid(leaf int, data []byte, onPersist func([]byte) error) (bool, error) {
	if leaf < 0 || leaf >= len(s.leaves) {
		return false, fmt.Errorf("%w: leaf %d of %d", ErrLeafOutOfRange, leaf, len(s.leaves))
	}
	if s.alg.Sum(data) != s.leaves[leaf] {
		return false, nil
	}

	var done chan struct{}
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return false, ErrStateClosed
		}
		if s.valid.Contains(uint32(leaf)) {
			s.mu.Unlock()
			return true, nil
		}
		if wait, ok := s.persisting[leaf]; ok {
			s.mu.Unlock()
			<-wait
			continue
		}
		done = make(chan struct{})
		s.persisting[leaf] = done
		s.inflight.Add(1)
		s.mu.Unlock()
		break
	}
	defer s.inflight.Done()

	var err error
	if onPersist != nil {
		err = onPersist(data)
	}

	s.mu.Lock()
	delete(s.persisting, leaf)
	if err == nil {
		s.valid.Add(uint32(leaf))
		s.dirty = true
	}
	s.mu.Unlock()
	close(done)

	if err != nil {
		return false, err
	}
	return true, nil
}

// IsValid reports whether leaf is verified-present.
func (s *State) IsValid(leaf int) bool {
	if leaf < 0 || leaf >= len(s.leaves) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid.Contains(uint32(leaf))
}

// ValidCount returns the number of valid leaves.
func (s *State) ValidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.valid.GetCardinality())
}

// IsComplete reports whether every leaf is valid.
func (s *State) IsComplete() bool {
	return s.ValidCount() == s.shape.LeafCount()
}

// ValidLeaves returns an immutable snapshot of the valid-leaf bitmap.
func (s *State) ValidLeaves() *roaring.Bitmap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid.Clone()
}

// Flush writes the artifact if anything changed since the last flush.
func (s *State) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	bitmap, err := s.valid.ToBytes()
	s.dirty = false
	s.mu.Unlock()
	if err != nil {
		s.markDirty()
		return err
	}

	payload := make([]byte, 0, (len(s.leaves)+1)*hash.Size+len(bitmap))
	payload = putDigests(payload, s.leaves)
	payload = append(payload, s.root[:]...)
	payload = append(payload, bitmap...)

	data, err := encodeArtifact(stateMagic, s.alg, s.codec, s.shape, payload)
	if err == nil {
		err = fs.WriteFileAtomic(s.fsys, s.path, data)
	}
	if err != nil {
		s.markDirty()
		return fmt.Errorf("merkle: flush state %s: %w", s.path, err)
	}
	return nil
}

func (s *State) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Close waits for in-progress SaveIfValid calls, flushes and rejects further
// validations. Close is idempotent.
func (s *State) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	return s.Flush()
}
