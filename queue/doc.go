// Package queue tracks in-flight chunk downloads.
//
// A Queue is two things at once: a registry of futures keyed by merkle node
// and by leaf, so that concurrent readers share one download instead of
// issuing duplicates, and a priority queue from which fetch workers pop
// accepted tasks.
//
// The protocol between a scheduler and a Queue is:
//
//	f := q.GetOrCreateFuture(node)
//	task := &queue.Task{Node: node, Leaves: leaves, Future: f}
//	if !q.OfferTask(task) {
//	    // Someone else owns the node; task.LeafFutures already points at
//	    // their futures.
//	}
//	err := task.Wait(ctx)
//
// OfferTask assigns every leaf of a task a future atomically, either one
// the task owns or one owned by an earlier task, so callers never wait on
// a future that nobody will complete.
package queue
