package netstate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/podlog/podlog/internal/engine"
	"github.com/podlog/podlog/internal/match"
	"github.com/podlog/podlog/internal/queue"
)

type fakeRemote struct {
	mu      sync.Mutex
	created int
}

func (f *fakeRemote) CreateMatch(ctx context.Context, p *match.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return "srv-1", nil
}

func (f *fakeRemote) PlayerExists(ctx context.Context, id string) (bool, error) { return true, nil }
func (f *fakeRemote) DeckExists(ctx context.Context, id string) (bool, error)   { return true, nil }

func (f *fakeRemote) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func setupPolicy(t *testing.T) (*queue.Store, *fakeRemote, *Policy) {
	t.Helper()

	store, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	fake := &fakeRemote{}
	eng := engine.New(store, fake, quietLogger())
	orch := engine.NewOrchestrator(store, eng, quietLogger())
	return store, fake, NewPolicy(store, orch, quietLogger())
}

func queueOne(t *testing.T, store *queue.Store) {
	t.Helper()

	p := &match.Payload{
		Players: []match.Participant{
			{PlayerID: "p1", DeckID: "d1", Winner: true},
			{PlayerID: "p2", DeckID: "d2"},
			{PlayerID: "p3", DeckID: "d3"},
		},
		WinnerPlayerID: "p1",
		WinnerDeckID:   "d1",
		Date:           time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	entry, err := store.Add(context.Background(), p, match.Snapshots{})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if entry == nil {
		t.Fatal("Add reported duplicate for a fresh payload")
	}
}

func reconnect(metered bool) Transition {
	return Transition{From: State{Online: false}, To: State{Online: true, Metered: metered}}
}

func TestPolicySyncsOnReconnect(t *testing.T) {
	store, fake, policy := setupPolicy(t)
	ctx := context.Background()

	queueOne(t, store)
	policy.Handle(ctx, reconnect(false))

	if fake.createCalls() != 1 {
		t.Errorf("expected 1 create on reconnect, got %d", fake.createCalls())
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("backlog not drained after reconnect: %d left", count)
	}
}

func TestPolicyWithholdsOnMetered(t *testing.T) {
	store, fake, policy := setupPolicy(t)
	ctx := context.Background()

	queueOne(t, store)

	var notified int
	policy.OnMeteredPending = func(pending int) { notified = pending }

	policy.Handle(ctx, reconnect(true))

	if fake.createCalls() != 0 {
		t.Errorf("metered reconnect transmitted %d entries", fake.createCalls())
	}
	if notified != 1 {
		t.Errorf("OnMeteredPending got %d, want 1", notified)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("backlog changed on metered reconnect: %d", count)
	}
}

func TestPolicyIgnoresNonReconnect(t *testing.T) {
	store, fake, policy := setupPolicy(t)
	ctx := context.Background()

	queueOne(t, store)

	// Going offline, or flipping metered while online, is not a trigger.
	policy.Handle(ctx, Transition{From: State{Online: true}, To: State{Online: false}})
	policy.Handle(ctx, Transition{
		From: State{Online: true},
		To:   State{Online: true, Metered: true},
	})

	if fake.createCalls() != 0 {
		t.Errorf("non-reconnect transition triggered %d creates", fake.createCalls())
	}
}

func TestPolicyEmptyBacklogNoop(t *testing.T) {
	_, fake, policy := setupPolicy(t)

	var notified bool
	policy.OnMeteredPending = func(int) { notified = true }

	policy.Handle(context.Background(), reconnect(false))
	policy.Handle(context.Background(), reconnect(true))

	if fake.createCalls() != 0 || notified {
		t.Error("empty backlog produced activity on reconnect")
	}
}

func TestPolicyRunConsumesChannel(t *testing.T) {
	store, fake, policy := setupPolicy(t)

	queueOne(t, store)

	transitions := make(chan Transition, 1)
	transitions <- reconnect(false)
	close(transitions)

	policy.Run(context.Background(), transitions)

	if fake.createCalls() != 1 {
		t.Errorf("expected 1 create via Run, got %d", fake.createCalls())
	}
}
