// Package remote talks to the server that is the system of record for
// matches, players, and decks.
//
// Failures cross this boundary as a closed set of typed outcomes:
// a *RemoteError carries a category derived from the server's response,
// while a *TransportError means no response was received at all. Callers
// branch with errors.As instead of inspecting response shapes.
package remote

import (
	"context"
	"fmt"

	"github.com/podlog/podlog/internal/match"
)

// Category identifies the kind of failure reported by the server or the
// transport. It is the input vocabulary of the error classifier.
type Category string

const (
	// CategoryMalformed is a client-side validation failure surfaced by the
	// server; the payload needs editing.
	CategoryMalformed Category = "malformed-request"
	// CategoryUnauthenticated means the session has expired or is invalid.
	CategoryUnauthenticated Category = "unauthenticated"
	// CategoryEntityMissing means an entity referenced by the request no
	// longer exists server-side.
	CategoryEntityMissing Category = "entity-missing"
	// CategoryConflict means the record already exists or semantically
	// conflicts with server state.
	CategoryConflict Category = "conflict"
	// CategoryRateLimited means the server is throttling this client.
	CategoryRateLimited Category = "rate-limited"
	// CategoryServerError is a transient server-side failure.
	CategoryServerError Category = "server-error"
	// CategoryUnavailable means the service is temporarily down.
	CategoryUnavailable Category = "unavailable"
	// CategoryNoNetwork means the request never reached the server.
	CategoryNoNetwork Category = "no-network"
)

// RemoteError is a categorized failure response from the server.
type RemoteError struct {
	Category Category
	Status   int
	Message  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote: %s (HTTP %d): %s", e.Category, e.Status, e.Message)
}

// TransportError means the request produced no server response: DNS
// failure, connection refused, timeout, or an offline interface.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is the remote system of record.
//
// CreateMatch submits a finished match and returns the server-assigned id.
// The existence checks back the pre-transmission conflict detection: they
// distinguish "definitely gone" (false, nil) from "couldn't tell" (error).
type Client interface {
	CreateMatch(ctx context.Context, payload *match.Payload) (string, error)
	PlayerExists(ctx context.Context, id string) (bool, error)
	DeckExists(ctx context.Context, id string) (bool, error)
}
