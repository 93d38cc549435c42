package queue

import (
	"context"
	"slices"
)

// Task is a request to download and verify the leaves below one node.
type Task struct {
	// Node is the merkle node the task covers.
	Node int
	// Leaves are the leaf indices to materialize, ascending.
	Leaves []int
	// Offset and Length are the content bytes spanned by Leaves.
	Offset int64
	Length int64
	// Priority orders dispatch; lower runs first.
	Priority int

	// Future completes when the owning task for Node finishes. After a
	// rejected OfferTask it is the owner's future.
	Future *Future
	// LeafFutures maps every entry of Leaves that is being fetched to the
	// future that completes when that leaf is verified or has failed.
	LeafFutures map[int]*Future

	owned []int
	seq   uint64
}

// OwnedLeaves returns the leaves this task is responsible for fetching.
// Leaves already owned by another task at offer time are excluded.
func (t *Task) OwnedLeaves() []int { return t.owned }

// Owns reports whether the task is responsible for leaf.
func (t *Task) Owns(leaf int) bool {
	_, ok := slices.BinarySearch(t.owned, leaf)
	return ok
}

// Wait blocks until every leaf future completes and returns the first error.
func (t *Task) Wait(ctx context.Context) error {
	for _, leaf := range t.Leaves {
		f, ok := t.LeafFutures[leaf]
		if !ok {
			continue
		}
		if err := f.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
