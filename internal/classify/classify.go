// Package classify maps a sync failure to its retry strategy.
//
// The table in this package is the single source of truth for retry policy:
// the sync engine reports a classified strategy and the orchestrator (or the
// user, for terminal outcomes) decides what happens next. No other component
// may hardcode per-category behavior.
package classify

import (
	"errors"

	"github.com/podlog/podlog/internal/remote"
)

// UserAction is the manual step required to clear a terminal failure.
type UserAction string

const (
	// ActionEdit means the payload is malformed and must be corrected.
	ActionEdit UserAction = "edit"
	// ActionReauth means the session expired; sign in again and retry.
	ActionReauth UserAction = "reauth"
	// ActionRemove means a referenced entity is gone; discard the entry.
	ActionRemove UserAction = "remove"
	// ActionResolve means the record conflicts with server state and needs
	// manual resolution.
	ActionResolve UserAction = "resolve"
)

// UnboundedAttempts marks a strategy with no retry cap.
const UnboundedAttempts = 0

// Strategy tells the caller whether and how to retry a failed attempt.
type Strategy struct {
	// Retry is false for user-actionable terminal failures.
	Retry bool
	// MaxAttempts caps automatic retries; UnboundedAttempts means no cap.
	MaxAttempts int
	// UserAction is set iff Retry is false.
	UserAction UserAction
	// Message is a human-readable description shown next to the entry.
	Message string
}

// strategies maps each outcome category to its retry strategy. Retryable
// rows all use exponential backoff driven by the orchestrator.
var strategies = map[remote.Category]Strategy{
	remote.CategoryMalformed:       {Retry: false, UserAction: ActionEdit},
	remote.CategoryUnauthenticated: {Retry: false, UserAction: ActionReauth},
	remote.CategoryEntityMissing:   {Retry: false, UserAction: ActionRemove},
	remote.CategoryConflict:        {Retry: false, UserAction: ActionResolve},
	remote.CategoryRateLimited:     {Retry: true, MaxAttempts: 5},
	remote.CategoryServerError:     {Retry: true, MaxAttempts: 3},
	remote.CategoryUnavailable:     {Retry: true, MaxAttempts: 5},
	remote.CategoryNoNetwork:       {Retry: true, MaxAttempts: UnboundedAttempts},
}

// Classify maps an outcome from the transport boundary to a strategy.
//
// Unclassified outcomes default to the transient-server-error row so an
// unexpected failure is retried a few times rather than dropped.
func Classify(err error) Strategy {
	category, message := Categorize(err)

	strategy, ok := strategies[category]
	if !ok {
		strategy = strategies[remote.CategoryServerError]
	}
	strategy.Message = message
	return strategy
}

// Categorize extracts the outcome category and message from an error.
// Transport errors (no response at all) are no-network; anything that is
// neither a remote nor a transport outcome falls back to server-error.
func Categorize(err error) (remote.Category, string) {
	var remoteErr *remote.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Category, remoteErr.Message
	}

	var transportErr *remote.TransportError
	if errors.As(err, &transportErr) {
		return remote.CategoryNoNetwork, transportErr.Error()
	}

	return remote.CategoryServerError, err.Error()
}
