package merkle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/hupe1980/vecfetch/internal/hash"
	"golang.org/x/sync/errgroup"
)

// Progress reports how many chunks a long-running operation has processed.
type Progress struct {
	Processed int
	Total     int
}

// Fraction returns Processed/Total in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Processed) / float64(p.Total)
}

// BuildOptions configures reference construction.
type BuildOptions struct {
	// Algorithm is the digest function. Defaults to hash.SHA256.
	Algorithm hash.Algorithm

	// Concurrency bounds parallel leaf hashing for io.ReaderAt sources.
	// Defaults to GOMAXPROCS.
	Concurrency int

	// OnProgress is called after every hashed chunk. Calls are serialized
	// and Processed increases monotonically.
	OnProgress func(Progress)
}

func applyBuildOptions(optFns []func(*BuildOptions)) BuildOptions {
	o := BuildOptions{Algorithm: hash.SHA256}
	for _, fn := range optFns {
		fn(&o)
	}
	if !o.Algorithm.Valid() {
		o.Algorithm = hash.SHA256
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	return o
}

// progressReporter serializes progress callbacks.
type progressReporter struct {
	mu    sync.Mutex
	done  int
	total int
	fn    func(Progress)
}

func (p *progressReporter) step() {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.fn(Progress{Processed: p.done, Total: p.total})
}

// BuildFromReaderAt hashes size bytes of r in parallel and returns the
// complete reference tree.
func BuildFromReaderAt(ctx context.Context, r io.ReaderAt, size, chunkSize int64, optFns ...func(*BuildOptions)) (*Reference, error) {
	o := applyBuildOptions(optFns)
	shape, err := NewShape(size, chunkSize)
	if err != nil {
		return nil, err
	}

	leaves := make([]Hash, shape.LeafCount())
	progress := &progressReporter{total: shape.LeafCount(), fn: o.OnProgress}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)

	for leaf := range shape.LeafCount() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start, length := shape.ChunkBoundary(leaf)
			buf := make([]byte, length)
			n, err := r.ReadAt(buf, start)
			if int64(n) < length {
				if err == nil || errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				return fmt.Errorf("merkle: read chunk %d: %w", leaf, err)
			}
			leaves[leaf] = o.Algorithm.Sum(buf)
			progress.step()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return newReference(shape, o.Algorithm, leaves), nil
}

// BuildFromReader hashes a sequential stream of exactly size bytes.
func BuildFromReader(ctx context.Context, r io.Reader, size, chunkSize int64, optFns ...func(*BuildOptions)) (*Reference, error) {
	o := applyBuildOptions(optFns)
	shape, err := NewShape(size, chunkSize)
	if err != nil {
		return nil, err
	}

	leaves := make([]Hash, shape.LeafCount())
	progress := &progressReporter{total: shape.LeafCount(), fn: o.OnProgress}
	buf := make([]byte, min(chunkSize, max(size, 1)))

	for leaf := range shape.LeafCount() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, length := shape.ChunkBoundary(leaf)
		chunk := buf[:length]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("merkle: read chunk %d: %w", leaf, err)
		}
		leaves[leaf] = o.Algorithm.Sum(chunk)
		progress.step()
	}

	return newReference(shape, o.Algorithm, leaves), nil
}

// BuildFromFile hashes a local file.
func BuildFromFile(ctx context.Context, path string, chunkSize int64, optFns ...func(*BuildOptions)) (*Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return BuildFromReaderAt(ctx, f, info.Size(), chunkSize, optFns...)
}

// BuildFromBytes hashes an in-memory source.
func BuildFromBytes(data []byte, chunkSize int64, optFns ...func(*BuildOptions)) (*Reference, error) {
	return BuildFromReaderAt(context.Background(), bytes.NewReader(data), int64(len(data)), chunkSize, optFns...)
}
