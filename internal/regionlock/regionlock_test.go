package regionlock

import (
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/vecfetch/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStripesFor(t *testing.T) {
	l := New(100, 8)

	assert.Equal(t, []int{0}, l.stripesFor(0, 1))
	assert.Equal(t, []int{0}, l.stripesFor(0, 100))
	assert.Equal(t, []int{0, 1}, l.stripesFor(99, 2))
	assert.Equal(t, []int{2}, l.stripesFor(250, 0))
	// Regions 6..9 wrap onto stripes 6,7,0,1.
	assert.Equal(t, []int{0, 1, 6, 7}, l.stripesFor(600, 400))
	assert.Len(t, l.stripesFor(0, 10_000), 8)
}

func TestDefaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, int64(DefaultRegionSize), l.RegionSize())
	assert.Len(t, l.stripes, DefaultStripes)
}

func TestDisjointRegionsDoNotBlock(t *testing.T) {
	l := New(100, 16)
	h := l.Lock(0, 100)
	defer h.Unlock()

	done := make(chan struct{})
	go func() {
		l.Lock(100, 100).Unlock()
		l.RLock(500, 50).Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disjoint lock blocked")
	}
}

func TestReadersShareWritersExclude(t *testing.T) {
	l := New(100, 16)
	r1 := l.RLock(0, 150)
	r2 := l.RLock(50, 10)

	acquired := make(chan struct{})
	go func() {
		h := l.Lock(120, 10)
		close(acquired)
		h.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired while readers hold the region")
	case <-time.After(20 * time.Millisecond):
	}

	r1.Unlock()
	r2.Unlock()
	r2.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired")
	}
}

func TestSameRegionNoLostUpdates(t *testing.T) {
	l := New(64, 4)
	counters := make([]int, 8)

	var wg sync.WaitGroup
	for g := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				idx := (g + i) % len(counters)
				h := l.Lock(int64(idx*32), 32)
				counters[idx]++
				h.Unlock()
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, c := range counters {
		total += c
	}
	assert.Equal(t, 16*500, total)
}

func TestOverlappingMultiRegionNoDeadlock(t *testing.T) {
	l := New(10, 8)
	rng := testutil.NewRNG(5)

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for range 32 {
			off, n := rng.Range(1000, 200)
			write := rng.Intn(2) == 0
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 200 {
					var h *Handle
					if write {
						h = l.Lock(off, n)
					} else {
						h = l.RLock(off, n)
					}
					h.Unlock()
				}
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("deadlock")
	}
}
