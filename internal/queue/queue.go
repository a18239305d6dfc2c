// Package queue provides the durable offline queue for match records.
//
// The queue is a local SQLite table of operations that are still owed to the
// server. Entries survive process restarts and are the sole source of truth
// for unsynced work. The store owns every entry; the sync engine borrows an
// entry for the duration of one attempt and writes back the result.
//
// The database runs embedded (ncruces/go-sqlite3) with WAL mode so the UI
// can read queue state while the daemon writes.
package queue

import "time"

// Status is the lifecycle state of a queued match.
type Status string

const (
	// StatusPending means the entry is waiting for its first or next attempt.
	StatusPending Status = "pending"
	// StatusSyncing means an attempt currently holds the entry. An entry
	// found in this state at startup is leftover from a crash and is
	// re-attemptable.
	StatusSyncing Status = "syncing"
	// StatusError means the last attempt failed; LastError describes why.
	StatusError Status = "error"
)

// LiveStatuses are the states counted against the deduplication window.
// Synced entries are removed outright and never appear here.
var LiveStatuses = []Status{StatusPending, StatusSyncing, StatusError}

// SyncError records why the last attempt on an entry failed.
type SyncError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
