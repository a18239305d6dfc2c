package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/podlog/podlog/internal/classify"
	"github.com/podlog/podlog/internal/queue"
	"github.com/podlog/podlog/internal/remote"
)

// ErrSyncInProgress is returned when an entry is already held by a
// concurrent attempt. Callers treat it as a no-op, not a failure.
var ErrSyncInProgress = errors.New("engine: entry is already syncing")

// Result reports the outcome of one sync attempt.
//
// Exactly one of ServerID and Strategy is set: ServerID on success (the
// entry has been removed from the queue), Strategy on a failed attempt
// (the entry remains in error state).
type Result struct {
	ID       string
	ServerID string
	Strategy *classify.Strategy
}

// Synced reports whether the attempt succeeded.
func (r *Result) Synced() bool { return r.ServerID != "" }

// Engine syncs individual queue entries to the remote system of record.
type Engine struct {
	store  *queue.Store
	client remote.Client
	logger *log.Logger

	// OnSuccess is invoked after an entry is synced and removed, with the
	// server-assigned id the UI should rebind to.
	OnSuccess func(id, serverID string)
	// OnError is invoked after a failed attempt with the classified strategy.
	OnError func(id string, strategy classify.Strategy)

	mu       sync.Mutex
	inflight map[string]bool

	now func() time.Time
}

// New creates an Engine. If logger is nil, a default logger writing to
// stderr is used.
func New(store *queue.Store, client remote.Client, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Engine{
		store:    store,
		client:   client,
		logger:   logger,
		inflight: make(map[string]bool),
		now:      time.Now,
	}
}

// InflightIDs returns the ids currently held by active attempts in this
// process. The orchestrator excludes them from the stale-entry sweep.
func (e *Engine) InflightIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.inflight))
	for id := range e.inflight {
		ids = append(ids, id)
	}
	return ids
}

// SyncOne attempts to sync a single entry.
//
// The entry is transitioned to syncing and persisted before any network
// call, so a crash mid-attempt is observable. On success the entry is
// removed and the server id reported. On failure the retry counter is
// incremented, the error classified and persisted, and the strategy
// returned; whether to retry is the caller's decision.
//
// Returns ErrSyncInProgress if a concurrent attempt holds the entry, and
// queue.ErrNotFound if the entry was deleted in the meantime.
func (e *Engine) SyncOne(ctx context.Context, id string) (*Result, error) {
	if !e.acquire(id) {
		return nil, ErrSyncInProgress
	}
	defer e.release(id)

	entry, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := e.store.UpdateStatus(ctx, id, queue.StatusSyncing, nil); err != nil {
		return nil, fmt.Errorf("failed to mark entry syncing: %w", err)
	}

	// Conflict detection runs before transmission: if any referenced
	// entity is gone, the user sees which ones, and no request is sent.
	if outcome := e.checkReferences(ctx, entry); outcome != nil {
		return e.fail(ctx, entry, outcome)
	}

	if err := e.store.MarkSubmitted(ctx, id, e.now()); err != nil {
		return nil, fmt.Errorf("failed to record submission time: %w", err)
	}

	serverID, err := e.client.CreateMatch(ctx, &entry.Payload)
	if err != nil {
		return e.fail(ctx, entry, err)
	}

	// Synced is terminal: the entry is removed, not retained.
	if err := e.store.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to remove synced entry: %w", err)
	}

	e.logger.Printf("Synced match %s -> server id %s", id, serverID)
	if e.OnSuccess != nil {
		e.OnSuccess(id, serverID)
	}

	return &Result{ID: id, ServerID: serverID}, nil
}

// checkReferences verifies every distinct player and deck referenced by the
// payload still exists remotely.
//
// Returns nil when all references resolve, a CategoryEntityMissing outcome
// naming the missing entities by snapshot name when any are gone, or the
// underlying error when a check itself fails (that error is the terminal
// outcome for this attempt, not swallowed).
func (e *Engine) checkReferences(ctx context.Context, entry *queue.QueuedMatch) error {
	var missingPlayers, missingDecks []string

	for _, playerID := range entry.Payload.PlayerIDs() {
		ok, err := e.client.PlayerExists(ctx, playerID)
		if err != nil {
			return err
		}
		if !ok {
			missingPlayers = append(missingPlayers, entry.Snapshots.PlayerName(playerID))
		}
	}

	for _, deckID := range entry.Payload.DeckIDs() {
		ok, err := e.client.DeckExists(ctx, deckID)
		if err != nil {
			return err
		}
		if !ok {
			missingDecks = append(missingDecks, entry.Snapshots.DeckName(deckID))
		}
	}

	if len(missingPlayers) == 0 && len(missingDecks) == 0 {
		return nil
	}

	return &remote.RemoteError{
		Category: remote.CategoryEntityMissing,
		Message:  missingMessage(missingPlayers, missingDecks),
	}
}

// missingMessage names deleted entities for the user, e.g.
// "Players deleted: Ana, Ben; Decks deleted: Gruul Stompy".
func missingMessage(players, decks []string) string {
	sort.Strings(players)
	sort.Strings(decks)

	var parts []string
	if len(players) > 0 {
		parts = append(parts, "Players deleted: "+strings.Join(players, ", "))
	}
	if len(decks) > 0 {
		parts = append(parts, "Decks deleted: "+strings.Join(decks, ", "))
	}
	return strings.Join(parts, "; ")
}

// fail records a failed attempt: bump the retry counter, classify the
// outcome, persist the error state, and report the strategy to the caller.
func (e *Engine) fail(ctx context.Context, entry *queue.QueuedMatch, outcome error) (*Result, error) {
	if err := e.store.IncrementRetry(ctx, entry.ID); err != nil {
		return nil, fmt.Errorf("failed to increment retry count: %w", err)
	}

	strategy := classify.Classify(outcome)
	category, _ := classify.Categorize(outcome)

	syncErr := &queue.SyncError{
		Code:    string(category),
		Message: strategy.Message,
		At:      e.now().UTC(),
	}
	if err := e.store.UpdateStatus(ctx, entry.ID, queue.StatusError, syncErr); err != nil {
		return nil, fmt.Errorf("failed to persist error state: %w", err)
	}

	e.logger.Printf("Sync failed for %s (%s, attempt %d): %s",
		entry.ID, category, entry.RetryCount+1, strategy.Message)
	if e.OnError != nil {
		e.OnError(entry.ID, strategy)
	}

	return &Result{ID: entry.ID, Strategy: &strategy}, nil
}

func (e *Engine) acquire(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight[id] {
		return false
	}
	e.inflight[id] = true
	return true
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}
