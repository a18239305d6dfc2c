package netstate

import (
	"context"
	"log"
	"os"

	"github.com/podlog/podlog/internal/engine"
	"github.com/podlog/podlog/internal/queue"
)

// Policy decides whether automatic sync should run when connectivity
// returns. It only decides when to invoke the orchestrator; retry behavior
// lives entirely in the classifier and orchestrator.
type Policy struct {
	store  *queue.Store
	orch   *engine.Orchestrator
	logger *log.Logger

	// OnMeteredPending is invoked instead of syncing when connectivity
	// returns over a metered path, with the number of entries waiting for
	// an explicit user-triggered sync.
	OnMeteredPending func(pending int)
}

// NewPolicy creates a Policy over the given store and orchestrator.
// If logger is nil, a default logger writing to stderr is used.
func NewPolicy(store *queue.Store, orch *engine.Orchestrator, logger *log.Logger) *Policy {
	if logger == nil {
		logger = log.New(os.Stderr, "[policy] ", log.LstdFlags)
	}
	return &Policy{store: store, orch: orch, logger: logger}
}

// Run consumes transitions until the channel closes or ctx is cancelled.
func (p *Policy) Run(ctx context.Context, transitions <-chan Transition) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-transitions:
			if !ok {
				return
			}
			p.Handle(ctx, tr)
		}
	}
}

// Handle applies the policy to one transition: on regaining connectivity
// with a non-empty backlog, sync automatically unless the connection is
// metered, in which case the pending count is surfaced and transmission
// withheld.
func (p *Policy) Handle(ctx context.Context, tr Transition) {
	if !tr.Reconnected() {
		return
	}

	pending, err := p.store.Count(ctx)
	if err != nil {
		p.logger.Printf("Warning: failed to count backlog: %v", err)
		return
	}
	if pending == 0 {
		return
	}

	if tr.To.Metered {
		p.logger.Printf("Back online (metered): %d entries held for manual sync", pending)
		if p.OnMeteredPending != nil {
			p.OnMeteredPending(pending)
		}
		return
	}

	p.logger.Printf("Back online: syncing %d entries", pending)
	if _, err := p.orch.SyncAllAuto(ctx); err != nil && ctx.Err() == nil {
		p.logger.Printf("Warning: automatic sync failed: %v", err)
	}
}
