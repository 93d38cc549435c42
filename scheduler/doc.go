// Package scheduler decides which merkle nodes to download for a read.
//
// A Scheduler turns a byte range plus the current validity of each leaf into
// a list of Decisions: the nodes whose subtrees must be fetched, why, and
// roughly how many bytes that costs. Schedule additionally registers the
// decisions with a Target (normally a *queue.Queue), which deduplicates
// in-flight work across concurrent readers.
//
// Built-in policies:
//
//   - Conservative: one leaf per decision; never fetches a byte it was not
//     asked for.
//   - Default: covers each run of missing leaves with the largest aligned
//     subtrees, so neighbouring chunks arrive in one request.
//   - Aggressive: like Default, plus a forward prefetch window that grows
//     with the request.
//   - Adaptive: picks one of the above from the fraction of the file that is
//     already cached.
package scheduler
