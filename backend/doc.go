// Package backend defines the uniform abstraction over the three job
// engines: immediate in-process execution, the Redis-backed durable
// queue, and the store-backed persistent scheduler.
//
// Callers hold a Backend and never branch on the concrete engine. Work is
// identified by a registered callable name plus JSON-serializable
// arguments, because the durable engines ship jobs across process
// boundaries. Schedules are normalized to the Trigger sum type and
// deferred work is tracked through opaque JobHandles.
package backend
