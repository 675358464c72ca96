// Package redisq implements the durable queue job engine on Redis.
//
// Jobs survive process restarts: submissions land in Redis lists and
// sorted sets, and separate worker processes consume them. Records are
// JSON snapshots keyed by job ID; pending work waits in per-queue lists,
// deferred and recurring work in a per-queue sorted set scored by fire
// time, which the scheduler loop promotes into the list when due.
//
// The engine does not run callables in the submitting process, so it
// cannot offer the suspendable execution path; SupportsAsync is false.
package redisq
