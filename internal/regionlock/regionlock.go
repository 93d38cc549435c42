// Package regionlock serializes access to byte ranges of a cache file.
//
// The file is divided into fixed-size regions, each mapped to one of a fixed
// number of striped RWMutexes. Locking a range acquires the stripes of every
// region it touches in ascending stripe order, so concurrent multi-region
// locks cannot deadlock. Locks are not reentrant: a holder must not lock an
// overlapping range again before releasing.
package regionlock

import (
	"slices"
	"sync"
)

const (
	// DefaultRegionSize is the lock granularity in bytes.
	DefaultRegionSize = 64 << 10
	// DefaultStripes is the number of mutexes regions hash onto.
	DefaultStripes = 256
)

// Locker hands out range locks.
type Locker struct {
	regionSize int64
	stripes    []sync.RWMutex
}

// New returns a Locker with the given region size and stripe count. Zero
// values select the defaults.
func New(regionSize int64, stripes int) *Locker {
	if regionSize <= 0 {
		regionSize = DefaultRegionSize
	}
	if stripes <= 0 {
		stripes = DefaultStripes
	}
	return &Locker{regionSize: regionSize, stripes: make([]sync.RWMutex, stripes)}
}

// RegionSize returns the lock granularity.
func (l *Locker) RegionSize() int64 { return l.regionSize }

// Handle releases a held range lock.
type Handle struct {
	l       *Locker
	stripes []int
	write   bool
	once    sync.Once
}

// Unlock releases the lock. It is safe to call more than once.
func (h *Handle) Unlock() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		for i := len(h.stripes) - 1; i >= 0; i-- {
			if h.write {
				h.l.stripes[h.stripes[i]].Unlock()
			} else {
				h.l.stripes[h.stripes[i]].RUnlock()
			}
		}
	})
}

// RLock takes shared locks over [off, off+length).
func (l *Locker) RLock(off, length int64) *Handle {
	h := &Handle{l: l, stripes: l.stripesFor(off, length)}
	for _, s := range h.stripes {
		l.stripes[s].RLock()
	}
	return h
}

// Lock takes exclusive locks over [off, off+length).
func (l *Locker) Lock(off, length int64) *Handle {
	h := &Handle{l: l, stripes: l.stripesFor(off, length), write: true}
	for _, s := range h.stripes {
		l.stripes[s].Lock()
	}
	return h
}

// stripesFor returns the sorted, deduplicated stripes covering the range.
func (l *Locker) stripesFor(off, length int64) []int {
	if length <= 0 {
		length = 1
	}
	first := off / l.regionSize
	last := (off + length - 1) / l.regionSize
	n := len(l.stripes)

	if last-first+1 >= int64(n) {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}

	out := make([]int, 0, last-first+1)
	for r := first; r <= last; r++ {
		out = append(out, int(r%int64(n)))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
