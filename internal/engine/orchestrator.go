package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/podlog/podlog/internal/classify"
	"github.com/podlog/podlog/internal/queue"
	"github.com/podlog/podlog/internal/remote"
)

const (
	// DefaultBackoffBase is the delay before the first retry.
	DefaultBackoffBase = time.Second
	// DefaultBackoffMax caps the exponential backoff.
	DefaultBackoffMax = 30 * time.Second
)

// Summary is the terminal report of a batch run.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Orchestrator sequences the full backlog through the engine, applying
// backoff between retries and reporting aggregate progress.
//
// The backlog is processed sequentially, oldest first. This is a deliberate
// throttling choice: backoff delays stay meaningful and the server is never
// hit with the whole backlog in parallel.
type Orchestrator struct {
	store  *queue.Store
	engine *Engine
	logger *log.Logger

	// BackoffBase and BackoffMax shape the per-entry retry delay:
	// min(BackoffBase * 2^retryCount, BackoffMax).
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// HoldWindow keeps freshly queued entries out of automatic batches so
	// the UI's undo window stays honest. Advisory: manual syncs ignore it.
	HoldWindow time.Duration

	mu         sync.Mutex
	onProgress func(done, total int)
	onComplete func(succeeded, failed int)
	allSynced  []func()

	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an Orchestrator over the given store and engine.
// If logger is nil, a default logger writing to stderr is used.
func NewOrchestrator(store *queue.Store, eng *Engine, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Orchestrator{
		store:       store,
		engine:      eng,
		logger:      logger,
		BackoffBase: DefaultBackoffBase,
		BackoffMax:  DefaultBackoffMax,
		sleep:       sleepCtx,
	}
}

// OnProgress registers a callback invoked after each processed entry.
func (o *Orchestrator) OnProgress(fn func(done, total int)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onProgress = fn
}

// OnComplete registers a callback invoked with the terminal counts of each
// batch run.
func (o *Orchestrator) OnComplete(fn func(succeeded, failed int)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onComplete = fn
}

// OnAllSynced registers a persistent subscription fired every time the
// backlog transitions from non-empty to empty. Subscriptions are not
// cleared after firing; use ClearOnAllSynced to disarm.
func (o *Orchestrator) OnAllSynced(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.allSynced = append(o.allSynced, fn)
}

// ClearOnAllSynced removes all all-synced subscriptions.
func (o *Orchestrator) ClearOnAllSynced() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.allSynced = nil
}

// SyncAll processes the entire backlog once, on behalf of an explicit user
// command. Freshly queued entries are included, and entries whose automatic
// retry budget is exhausted are re-attempted: an explicit "sync now" is
// itself the user action.
func (o *Orchestrator) SyncAll(ctx context.Context) (Summary, error) {
	return o.run(ctx, 0, false)
}

// SyncAllAuto processes the backlog on behalf of the connectivity policy or
// a timer. It honors the hold window for freshly queued entries and skips
// entries the classifier marks terminal or out of retry budget.
func (o *Orchestrator) SyncAllAuto(ctx context.Context) (Summary, error) {
	return o.run(ctx, o.HoldWindow, true)
}

func (o *Orchestrator) run(ctx context.Context, hold time.Duration, respectBudget bool) (Summary, error) {
	var summary Summary

	// Entries stuck in syncing from a previous session are re-attemptable.
	// Ids held by this process stay untouched; a concurrent batch simply
	// skips them below.
	reset, err := o.store.ResetStale(ctx, o.engine.InflightIDs())
	if err != nil {
		return summary, err
	}
	if reset > 0 {
		o.logger.Printf("Recovered %d entries stuck in syncing", reset)
	}

	entries, err := o.store.ListByStatus(ctx, queue.StatusPending, queue.StatusError)
	if err != nil {
		return summary, err
	}

	hadBacklog := len(entries) > 0
	total := len(entries)
	done := 0

	for _, entry := range entries {
		if hold > 0 && time.Since(entry.QueuedAt) < hold {
			summary.Skipped++
			done++
			o.reportProgress(done, total)
			continue
		}

		if respectBudget && !retryEligible(entry) {
			summary.Skipped++
			done++
			o.reportProgress(done, total)
			continue
		}

		if entry.RetryCount > 0 {
			if err := o.sleep(ctx, o.backoffDelay(entry.RetryCount)); err != nil {
				return summary, err
			}
		}

		res, err := o.engine.SyncOne(ctx, entry.ID)
		switch {
		case errors.Is(err, ErrSyncInProgress), errors.Is(err, queue.ErrNotFound):
			// Another trigger got here first, or the user removed the
			// entry mid-batch. Not a failure.
			summary.Skipped++
		case err != nil:
			// Store-level failure; keep going with the rest of the backlog.
			o.logger.Printf("Warning: failed to sync %s: %v", entry.ID, err)
			summary.Failed++
		case res.Synced():
			summary.Succeeded++
		default:
			summary.Failed++
		}

		done++
		o.reportProgress(done, total)
	}

	o.logger.Printf("Batch complete: %d synced, %d failed, %d skipped",
		summary.Succeeded, summary.Failed, summary.Skipped)

	o.mu.Lock()
	complete := o.onComplete
	o.mu.Unlock()
	if complete != nil {
		complete(summary.Succeeded, summary.Failed)
	}

	if hadBacklog {
		if err := o.fireIfEmpty(ctx); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// backoffDelay returns min(BackoffBase * 2^retryCount, BackoffMax).
func (o *Orchestrator) backoffDelay(retryCount int) time.Duration {
	delay := o.BackoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= o.BackoffMax {
			return o.BackoffMax
		}
	}
	return delay
}

// retryEligible applies the classifier's verdict to an entry in error
// state: terminal failures wait for the user, and bounded-retry categories
// stop once the attempt cap is reached. Pending entries are always eligible.
func retryEligible(entry *queue.QueuedMatch) bool {
	if entry.Status != queue.StatusError || entry.LastError == nil {
		return true
	}

	strategy := classify.Classify(&remote.RemoteError{
		Category: remote.Category(entry.LastError.Code),
		Message:  entry.LastError.Message,
	})
	if !strategy.Retry {
		return false
	}
	if strategy.MaxAttempts != classify.UnboundedAttempts &&
		entry.RetryCount >= strategy.MaxAttempts {
		return false
	}
	return true
}

func (o *Orchestrator) reportProgress(done, total int) {
	o.mu.Lock()
	progress := o.onProgress
	o.mu.Unlock()
	if progress != nil {
		progress(done, total)
	}
}

// fireIfEmpty invokes the all-synced subscriptions when the backlog has
// just drained.
func (o *Orchestrator) fireIfEmpty(ctx context.Context) error {
	count, err := o.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count backlog: %w", err)
	}
	if count != 0 {
		return nil
	}

	o.mu.Lock()
	subs := make([]func(), len(o.allSynced))
	copy(subs, o.allSynced)
	o.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
