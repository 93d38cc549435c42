package scheduler

import (
	"fmt"
	"strings"

	"github.com/hupe1980/vecfetch/merkle"
	"github.com/hupe1980/vecfetch/queue"
)

// Reason explains why a node was selected.
type Reason uint8

const (
	// MinimalRequired fetches exactly one requested leaf.
	MinimalRequired Reason = iota
	// EfficientCoverage fetches several requested leaves in one subtree.
	EfficientCoverage
	// Prefetch fetches leaves beyond the requested range.
	Prefetch
)

func (r Reason) String() string {
	switch r {
	case MinimalRequired:
		return "minimal-required"
	case EfficientCoverage:
		return "efficient-coverage"
	case Prefetch:
		return "prefetch"
	default:
		return fmt.Sprintf("reason(%d)", r)
	}
}

// Priority maps a reason to a dispatch priority; requested data goes first.
func (r Reason) Priority() int { return int(r) }

// Decision selects one node for download.
type Decision struct {
	Node   int
	Leaves []int // missing leaves below Node, ascending
	Reason Reason
	// Offset and EstimatedBytes describe the content bytes Leaves span.
	Offset         int64
	EstimatedBytes int64
}

// Validity reports which leaves are already present.
type Validity interface {
	IsValid(leaf int) bool
	ValidCount() int
}

// Target accepts scheduled tasks. *queue.Queue implements it.
type Target interface {
	GetOrCreateFuture(node int) *queue.Future
	OfferTask(t *queue.Task) bool
}

// Scheduler selects nodes to fetch for a read of [offset, offset+length).
// Implementations are stateless and safe for concurrent use.
type Scheduler interface {
	// Name identifies the policy.
	Name() string
	// Analyze returns the decisions without side effects. Every missing
	// leaf in the requested range is covered by exactly one decision.
	Analyze(offset, length int64, shape merkle.Shape, state Validity) []Decision
	// Schedule analyzes and offers one task per decision to target. The
	// returned tasks carry futures for every leaf being fetched.
	Schedule(offset, length int64, shape merkle.Shape, state Validity, target Target) []*queue.Task
}

// New returns the built-in policy with the given name.
func New(name string) (Scheduler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return Default{}, nil
	case "conservative":
		return Conservative{}, nil
	case "aggressive":
		return Aggressive{}, nil
	case "adaptive":
		return Adaptive{}, nil
	default:
		return nil, fmt.Errorf("scheduler: unknown policy %q", name)
	}
}

// Names lists the built-in policies.
func Names() []string {
	return []string{"conservative", "default", "aggressive", "adaptive"}
}

func schedule(decisions []Decision, target Target) []*queue.Task {
	tasks := make([]*queue.Task, 0, len(decisions))
	for _, d := range decisions {
		t := &queue.Task{
			Node:     d.Node,
			Leaves:   d.Leaves,
			Offset:   d.Offset,
			Length:   d.EstimatedBytes,
			Priority: d.Reason.Priority(),
			Future:   target.GetOrCreateFuture(d.Node),
		}
		target.OfferTask(t)
		tasks = append(tasks, t)
	}
	return tasks
}

// requestLeaves clamps the request to the content and returns its inclusive
// leaf range. ok is false for empty or out-of-range requests.
func requestLeaves(offset, length int64, shape merkle.Shape) (first, last int, ok bool) {
	if length <= 0 || offset < 0 || offset >= shape.ContentSize() {
		return 0, 0, false
	}
	length = min(length, shape.ContentSize()-offset)
	first, last = shape.LeafRange(offset, length)
	return first, last, true
}

// missingRuns returns maximal runs [a, b] of invalid leaves in [first, last].
func missingRuns(first, last int, state Validity) [][2]int {
	var runs [][2]int
	start := -1
	for leaf := first; leaf <= last; leaf++ {
		if state.IsValid(leaf) {
			if start >= 0 {
				runs = append(runs, [2]int{start, leaf - 1})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = leaf
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, last})
	}
	return runs
}

// cover splits the missing run [a, b] into the largest aligned subtrees.
func cover(shape merkle.Shape, a, b int, reason func(node int, leaves []int) Reason) []Decision {
	var out []Decision
	for a <= b {
		node := shape.LeafNode(a)
		for {
			p := shape.Parent(node)
			if p < 0 {
				break
			}
			first, end := shape.NodeLeafRange(p)
			if first != a || end-1 > b {
				break
			}
			node = p
		}
		_, end := shape.NodeLeafRange(node)
		out = append(out, decision(shape, node, a, end, reason))
		a = end
	}
	return out
}

func decision(shape merkle.Shape, node, first, end int, reason func(int, []int) Reason) Decision {
	leaves := make([]int, 0, end-first)
	for l := first; l < end; l++ {
		leaves = append(leaves, l)
	}
	off, length := shape.NodeByteRange(node)
	return Decision{
		Node:           node,
		Leaves:         leaves,
		Reason:         reason(node, leaves),
		Offset:         off,
		EstimatedBytes: length,
	}
}

func coverageReason(_ int, leaves []int) Reason {
	if len(leaves) > 1 {
		return EfficientCoverage
	}
	return MinimalRequired
}
