// Package task runs units of background work and delivers their callbacks.
//
// A unit is submitted to a TaskRunner with one of two verbs. Queued units
// run one at a time per queue shard in submission order; every unit of a
// group lands on the same shard, so groups keep FIFO order. Executed units
// run concurrently, optionally capped by MaxParallel.
//
// Every unit lives in the Registry from submission until it terminates or
// is dropped while queued. Its handlers receive Start, any number of
// Progress and Named events, and exactly one terminal event: Success,
// Failure or Cancelled. Cancellation is cooperative: a running unit sees
// Work.IsQuitting report true and is expected to return Cancelled.
//
// With Redeliver enabled, queued units are written to a Journal and
// replayed on the next Start; targeted cancellation is refused in that
// mode.
package task
