package scheduler

import (
	"github.com/hupe1980/vecfetch/merkle"
	"github.com/hupe1980/vecfetch/queue"
)

// Conservative fetches each missing leaf on its own.
type Conservative struct{}

// Name implements Scheduler.
func (Conservative) Name() string { return "conservative" }

// Analyze implements Scheduler.
func (Conservative) Analyze(offset, length int64, shape merkle.Shape, state Validity) []Decision {
	first, last, ok := requestLeaves(offset, length, shape)
	if !ok {
		return nil
	}
	var out []Decision
	for leaf := first; leaf <= last; leaf++ {
		if state.IsValid(leaf) {
			continue
		}
		out = append(out, decision(shape, shape.LeafNode(leaf), leaf, leaf+1, coverageReason))
	}
	return out
}

// Schedule implements Scheduler.
func (c Conservative) Schedule(offset, length int64, shape merkle.Shape, state Validity, target Target) []*queue.Task {
	return schedule(c.Analyze(offset, length, shape, state), target)
}

// Default covers runs of missing leaves with maximal aligned subtrees.
type Default struct{}

// Name implements Scheduler.
func (Default) Name() string { return "default" }

// Analyze implements Scheduler.
func (Default) Analyze(offset, length int64, shape merkle.Shape, state Validity) []Decision {
	first, last, ok := requestLeaves(offset, length, shape)
	if !ok {
		return nil
	}
	var out []Decision
	for _, run := range missingRuns(first, last, state) {
		out = append(out, cover(shape, run[0], run[1], coverageReason)...)
	}
	return out
}

// Schedule implements Scheduler.
func (d Default) Schedule(offset, length int64, shape merkle.Shape, state Validity, target Target) []*queue.Task {
	return schedule(d.Analyze(offset, length, shape, state), target)
}

// Aggressive prefetch defaults.
const (
	DefaultPrefetchFactor    = 2
	DefaultMinPrefetchLeaves = 2
)

// Aggressive behaves like Default and additionally prefetches a window after
// the request of Factor times the requested leaf count, at least MinLeaves.
type Aggressive struct {
	Factor    int // zero means DefaultPrefetchFactor
	MinLeaves int // zero means DefaultMinPrefetchLeaves
}

// Name implements Scheduler.
func (Aggressive) Name() string { return "aggressive" }

func (a Aggressive) window(requested int) int {
	factor := a.Factor
	if factor <= 0 {
		factor = DefaultPrefetchFactor
	}
	minLeaves := a.MinLeaves
	if minLeaves <= 0 {
		minLeaves = DefaultMinPrefetchLeaves
	}
	return max(minLeaves, factor*requested)
}

// Analyze implements Scheduler.
func (a Aggressive) Analyze(offset, length int64, shape merkle.Shape, state Validity) []Decision {
	first, last, ok := requestLeaves(offset, length, shape)
	if !ok {
		return nil
	}
	out := Default{}.Analyze(offset, length, shape, state)

	extLast := min(shape.LeafCount()-1, last+a.window(last-first+1))
	if extLast <= last {
		return out
	}
	prefetch := func(int, []int) Reason { return Prefetch }
	for _, run := range missingRuns(last+1, extLast, state) {
		out = append(out, cover(shape, run[0], run[1], prefetch)...)
	}
	return out
}

// Schedule implements Scheduler.
func (a Aggressive) Schedule(offset, length int64, shape merkle.Shape, state Validity, target Target) []*queue.Task {
	return schedule(a.Analyze(offset, length, shape, state), target)
}

// Adaptive density thresholds.
const (
	SparseDensity = 0.25
	DenseDensity  = 0.75
)

// Adaptive chooses a policy from the cached fraction of the file: aggressive
// while sparse, conservative once dense, default in between.
type Adaptive struct{}

// Name implements Scheduler.
func (Adaptive) Name() string { return "adaptive" }

// Pick returns the policy Adaptive delegates to for the given state.
func (Adaptive) Pick(shape merkle.Shape, state Validity) Scheduler {
	density := float64(state.ValidCount()) / float64(shape.LeafCount())
	switch {
	case density < SparseDensity:
		return Aggressive{}
	case density > DenseDensity:
		return Conservative{}
	default:
		return Default{}
	}
}

// Analyze implements Scheduler.
func (a Adaptive) Analyze(offset, length int64, shape merkle.Shape, state Validity) []Decision {
	return a.Pick(shape, state).Analyze(offset, length, shape, state)
}

// Schedule implements Scheduler.
func (a Adaptive) Schedule(offset, length int64, shape merkle.Shape, state Validity, target Target) []*queue.Task {
	return schedule(a.Analyze(offset, length, shape, state), target)
}
