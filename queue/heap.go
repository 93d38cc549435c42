package queue

// taskHeap is a value-ordered min-heap on (Priority, seq).
type taskHeap struct {
	items []*Task
}

func (h *taskHeap) len() int { return len(h.items) }

func (h *taskHeap) push(t *Task) {
	h.items = append(h.items, t)
	h.siftUp(len(h.items) - 1)
}

func (h *taskHeap) pop() (*Task, bool) {
	n := len(h.items)
	if n == 0 {
		return nil, false
	}
	root := h.items[0]
	last := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	if n-1 > 0 {
		h.items[0] = last
		h.siftDown(0)
	}
	return root, true
}

func (h *taskHeap) less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}

func (h *taskHeap) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !h.less(i, p) {
			return
		}
		h.items[i], h.items[p] = h.items[p], h.items[i]
		i = p
	}
}

func (h *taskHeap) siftDown(i int) {
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && h.less(r, l) {
			best = r
		}
		if !h.less(best, i) {
			return
		}
		h.items[i], h.items[best] = h.items[best], h.items[i]
		i = best
	}
}
