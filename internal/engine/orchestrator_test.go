package engine

import (
	"context"
	"testing"
	"time"

	"github.com/podlog/podlog/internal/queue"
	"github.com/podlog/podlog/internal/remote"
)

func setupOrchestrator(t *testing.T) (*queue.Store, *fakeRemote, *Orchestrator) {
	t.Helper()

	store := setupTestStore(t)
	fake := newFakeRemote()
	eng := New(store, fake, quietLogger())
	orch := NewOrchestrator(store, eng, quietLogger())
	return store, fake, orch
}

func queueDistinct(t *testing.T, store *queue.Store, winner string) *queue.QueuedMatch {
	t.Helper()

	p := testPayload()
	p.WinnerPlayerID = winner
	for i := range p.Players {
		p.Players[i].Winner = p.Players[i].PlayerID == winner
	}
	entry, err := store.Add(context.Background(), p, testSnapshots())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if entry == nil {
		t.Fatal("Add reported duplicate for a distinct payload")
	}
	return entry
}

func TestBackoffDelay(t *testing.T) {
	orch := &Orchestrator{BackoffBase: time.Second, BackoffMax: 30 * time.Second}

	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := orch.backoffDelay(tt.retries); got != tt.want {
			t.Errorf("backoffDelay(%d) = %s, want %s", tt.retries, got, tt.want)
		}
	}
}

func TestSyncAllDrainsBacklog(t *testing.T) {
	store, _, orch := setupOrchestrator(t)
	ctx := context.Background()

	queueDistinct(t, store, "p1")
	queueDistinct(t, store, "p2")
	queueDistinct(t, store, "p3")

	var progress [][2]int
	orch.OnProgress(func(done, total int) { progress = append(progress, [2]int{done, total}) })

	var completed bool
	orch.OnComplete(func(succeeded, failed int) {
		completed = true
		if succeeded != 3 || failed != 0 {
			t.Errorf("OnComplete got (%d, %d), want (3, 0)", succeeded, failed)
		}
	})

	summary, err := orch.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if summary.Succeeded != 3 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if !completed {
		t.Error("OnComplete never fired")
	}
	if len(progress) != 3 || progress[2] != [2]int{3, 3} {
		t.Errorf("progress = %v", progress)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("backlog not drained: %d left", count)
	}
}

func TestSyncAllAppliesBackoff(t *testing.T) {
	store, fake, orch := setupOrchestrator(t)
	ctx := context.Background()

	entry := queueDistinct(t, store, "p1")

	// First attempt fails and bumps the retry counter.
	fake.createErr = &remote.RemoteError{Category: remote.CategoryServerError, Message: "boom"}
	if _, err := orch.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	var slept []time.Duration
	orch.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	fake.createErr = nil
	summary, err := orch.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Errorf("expected one 2s backoff sleep for retryCount 1, got %v", slept)
	}

	if _, err := store.Get(ctx, entry.ID); err == nil {
		t.Error("entry survived a successful retry")
	}
}

func TestSyncAllRecoversStaleEntries(t *testing.T) {
	store, _, orch := setupOrchestrator(t)
	ctx := context.Background()

	// Simulate a crash mid-attempt from a previous session.
	entry := queueDistinct(t, store, "p1")
	if err := store.UpdateStatus(ctx, entry.ID, queue.StatusSyncing, nil); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	summary, err := orch.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Errorf("stale entry not recovered and synced: %+v", summary)
	}
}

func TestAutoHonorsHoldWindow(t *testing.T) {
	store, fake, orch := setupOrchestrator(t)
	ctx := context.Background()

	orch.HoldWindow = time.Hour
	queueDistinct(t, store, "p1")

	summary, err := orch.SyncAllAuto(ctx)
	if err != nil {
		t.Fatalf("SyncAllAuto failed: %v", err)
	}
	if summary.Skipped != 1 || summary.Succeeded != 0 {
		t.Errorf("fresh entry not held back: %+v", summary)
	}
	if fake.createCalls() != 0 {
		t.Error("held entry was transmitted")
	}

	// A manual sync ignores the hold window.
	summary, err = orch.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Errorf("manual sync did not process held entry: %+v", summary)
	}
}

func TestAutoHonorsRetryBudget(t *testing.T) {
	store, fake, orch := setupOrchestrator(t)
	ctx := context.Background()

	entry := queueDistinct(t, store, "p1")

	// A terminal failure waits for the user.
	syncErr := &queue.SyncError{Code: string(remote.CategoryConflict), Message: "duplicate", At: time.Now()}
	if err := store.UpdateStatus(ctx, entry.ID, queue.StatusError, syncErr); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	summary, err := orch.SyncAllAuto(ctx)
	if err != nil {
		t.Fatalf("SyncAllAuto failed: %v", err)
	}
	if summary.Skipped != 1 || summary.Succeeded != 0 {
		t.Errorf("terminal entry re-attempted automatically: %+v", summary)
	}
	if fake.createCalls() != 0 {
		t.Error("terminal entry was transmitted")
	}

	// Explicit "sync now" is the user action: the entry runs again.
	summary, err = orch.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Errorf("manual sync skipped terminal entry: %+v", summary)
	}
}

func TestAutoSkipsExhaustedBudget(t *testing.T) {
	store, fake, orch := setupOrchestrator(t)
	orch.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	ctx := context.Background()

	entry := queueDistinct(t, store, "p1")

	// Burn through the server-error budget of 3 attempts.
	fake.createErr = &remote.RemoteError{Category: remote.CategoryServerError, Message: "boom"}
	for i := 0; i < 3; i++ {
		if _, err := orch.SyncAllAuto(ctx); err != nil {
			t.Fatalf("SyncAllAuto failed: %v", err)
		}
	}

	got, err := store.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RetryCount != 3 {
		t.Fatalf("retryCount = %d, want 3", got.RetryCount)
	}

	calls := fake.createCalls()
	summary, err := orch.SyncAllAuto(ctx)
	if err != nil {
		t.Fatalf("SyncAllAuto failed: %v", err)
	}
	if summary.Skipped != 1 {
		t.Errorf("exhausted entry not skipped: %+v", summary)
	}
	if fake.createCalls() != calls {
		t.Error("exhausted entry was transmitted again")
	}
}

func TestAllSyncedFiresAndRearms(t *testing.T) {
	store, _, orch := setupOrchestrator(t)
	ctx := context.Background()

	fired := 0
	orch.OnAllSynced(func() { fired++ })

	// Empty backlog: nothing drained, nothing fires.
	if _, err := orch.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if fired != 0 {
		t.Errorf("all-synced fired on an empty run: %d", fired)
	}

	queueDistinct(t, store, "p1")
	if _, err := orch.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("all-synced fired %d times, want 1", fired)
	}

	// The subscription stays armed for the next drain.
	queueDistinct(t, store, "p2")
	if _, err := orch.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if fired != 2 {
		t.Errorf("all-synced did not re-arm: fired %d times", fired)
	}

	orch.ClearOnAllSynced()
	queueDistinct(t, store, "p3")
	if _, err := orch.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if fired != 2 {
		t.Errorf("cleared subscription still fired: %d", fired)
	}
}
