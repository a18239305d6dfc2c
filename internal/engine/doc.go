// Package engine drives queued matches through validation, transmission,
// and outcome handling.
//
// # Overview
//
// The engine owns the per-entry state machine:
//
//	pending → syncing → synced (terminal, entry removed)
//	                  ↘ error → syncing (on retry)
//
// One SyncOne call mutates exactly one store entry; network calls are the
// only other I/O. Before transmitting, the engine checks that every player
// and deck referenced by the payload still exists server-side. If any are
// gone the attempt fails immediately with a message naming the missing
// entities by their captured snapshot names, and no transmission is made.
//
// The engine never decides whether to retry. It reports the classified
// strategy for each failure; the orchestrator applies the retry policy,
// backoff, and attempt caps.
//
// # Concurrency
//
// Each entry has a single logical writer. An in-process in-flight set
// guards against two concurrent attempts on the same id: the second call
// returns ErrSyncInProgress and must be treated as a no-op. Entries found
// in the syncing state that are not in the in-flight set are leftovers from
// a crash; the orchestrator resets them to pending before building a batch.
package engine
