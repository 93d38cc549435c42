package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrClosed completes every outstanding future when the queue closes and is
// returned by Pop afterwards.
var ErrClosed = errors.New("queue: closed")

type entry struct {
	future *Future
	owner  *Task
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Added     uint64 // tasks accepted by OfferTask
	Completed uint64 // tasks passed to CompleteTask
	Pending   int    // accepted, not yet popped
	InFlight  int    // popped, not yet completed
}

// Queue is a concurrency-safe task registry and dispatch queue.
type Queue struct {
	mu     sync.Mutex
	nodes  map[int]*entry
	leaves map[int]*entry
	heap   taskHeap
	wake   chan struct{}
	seq    uint64
	closed bool

	added     uint64
	completed uint64
	inflight  int
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		nodes:  make(map[int]*entry),
		leaves: make(map[int]*entry),
		wake:   make(chan struct{}),
	}
}

// GetOrCreateFuture returns the future of the in-flight task for node. If
// no task is registered, it returns a new future that the next OfferTask
// for node adopts.
func (q *Queue) GetOrCreateFuture(node int) *Future {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.nodes[node]; ok {
		return e.future
	}
	f := NewFuture()
	if q.closed {
		f.complete(ErrClosed)
		return f
	}
	q.nodes[node] = &entry{future: f}
	return f
}

// OfferTask registers t and enqueues it for execution.
//
// It returns false without enqueueing when another task already owns
// t.Node; t.Future and t.LeafFutures then refer to the owner's futures. It
// also returns false when every leaf of t is owned elsewhere. In both cases
// each leaf of t that is being fetched has a future in t.LeafFutures when
// OfferTask returns.
func (q *Queue) OfferTask(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t.LeafFutures == nil {
		t.LeafFutures = make(map[int]*Future, len(t.Leaves))
	}
	if q.closed {
		if t.Future == nil {
			t.Future = NewFuture()
		}
		t.Future.complete(ErrClosed)
		return false
	}

	e := q.nodes[t.Node]
	if e != nil && e.owner != nil && e.owner != t {
		t.Future = e.future
		q.borrowLeaves(t, e.owner)
		return false
	}
	if e == nil {
		f := t.Future
		if f == nil || f.IsDone() {
			f = NewFuture()
		}
		e = &entry{future: f}
		q.nodes[t.Node] = e
	}
	e.owner = t
	t.Future = e.future

	t.owned = t.owned[:0]
	for _, leaf := range t.Leaves {
		le := q.leaves[leaf]
		if le != nil && le.owner != nil && le.owner != t {
			t.LeafFutures[leaf] = le.future
			continue
		}
		if le == nil {
			le = &entry{future: NewFuture()}
			q.leaves[leaf] = le
		}
		le.owner = t
		t.LeafFutures[leaf] = le.future
		t.owned = append(t.owned, leaf)
	}
	slices.Sort(t.owned)

	if len(t.owned) == 0 {
		delete(q.nodes, t.Node)
		e.future.complete(nil)
		return false
	}

	q.seq++
	t.seq = q.seq
	q.heap.push(t)
	q.added++
	q.signal()
	return true
}

// borrowLeaves points t's leaves at the futures of the tasks fetching them.
func (q *Queue) borrowLeaves(t, owner *Task) {
	for _, leaf := range t.Leaves {
		if f, ok := owner.LeafFutures[leaf]; ok {
			t.LeafFutures[leaf] = f
			continue
		}
		if le, ok := q.leaves[leaf]; ok && le.owner != nil {
			t.LeafFutures[leaf] = le.future
		}
	}
}

func (q *Queue) signal() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// Pop blocks until a task is available, ctx is done or the queue closes.
// Tasks are returned in priority order, FIFO within a priority.
func (q *Queue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if t, ok := q.heap.pop(); ok {
			q.inflight++
			q.mu.Unlock()
			return t, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// CompleteLeaf resolves the future of a leaf owned by t and unregisters it,
// so a later request may fetch the leaf again if err is non-nil.
func (q *Queue) CompleteLeaf(t *Task, leaf int, err error) {
	if !t.Owns(leaf) {
		return
	}
	q.mu.Lock()
	if le, ok := q.leaves[leaf]; ok && le.owner == t {
		delete(q.leaves, leaf)
	}
	q.mu.Unlock()
	t.LeafFutures[leaf].complete(err)
}

// CompleteTask resolves every remaining owned leaf and the node future of
// t with err and unregisters t.
func (q *Queue) CompleteTask(t *Task, err error) {
	q.mu.Lock()
	for _, leaf := range t.owned {
		if le, ok := q.leaves[leaf]; ok && le.owner == t {
			delete(q.leaves, leaf)
		}
	}
	if e, ok := q.nodes[t.Node]; ok && e.owner == t {
		delete(q.nodes, t.Node)
	}
	q.completed++
	q.inflight--
	q.mu.Unlock()

	for _, leaf := range t.owned {
		t.LeafFutures[leaf].complete(err)
	}
	t.Future.complete(err)
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Added:     q.added,
		Completed: q.completed,
		Pending:   q.heap.len(),
		InFlight:  q.inflight,
	}
}

// Close fails every outstanding future with ErrClosed and wakes blocked
// Pop calls. Tasks already popped may still be completed normally.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	var pending []*Future
	for node, e := range q.nodes {
		if e.owner == nil {
			pending = append(pending, e.future)
			delete(q.nodes, node)
		}
	}
	for _, t := range q.heap.items {
		pending = append(pending, t.Future)
		for _, leaf := range t.owned {
			pending = append(pending, t.LeafFutures[leaf])
			delete(q.leaves, leaf)
		}
		delete(q.nodes, t.Node)
	}
	q.heap.items = nil
	q.signal()
	q.mu.Unlock()

	for _, f := range pending {
		f.complete(ErrClosed)
	}
}
