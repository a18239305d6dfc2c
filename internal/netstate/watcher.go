// Package netstate observes connectivity and decides when automatic sync
// may run.
//
// The platform shim (or the user, in a pinch) writes a small JSON state
// file whenever connectivity changes:
//
//	{"online": true, "metered": false}
//
// The watcher picks up changes via fsnotify with a polling fallback and
// emits transitions. The policy layer turns transitions into sync triggers;
// it holds no retry logic of its own.
package netstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// State is a snapshot of the transport's condition.
type State struct {
	// Online reports whether any transport is up.
	Online bool `json:"online"`
	// Metered reports a limited-data path (cellular, tethered) where
	// automatic high-volume sync should defer to user action.
	Metered bool `json:"metered"`
}

// Transition is emitted when the observed state changes.
type Transition struct {
	From State
	To   State
}

// Reconnected reports an offline-to-online edge.
func (t Transition) Reconnected() bool { return !t.From.Online && t.To.Online }

// DefaultPollInterval is the fallback polling cadence for platforms where
// file events are unreliable.
const DefaultPollInterval = 30 * time.Second

// Watcher watches the net-state file and emits transitions.
type Watcher struct {
	path    string
	logger  *log.Logger
	watcher *fsnotify.Watcher

	// PollInterval is the fallback re-read cadence.
	PollInterval time.Duration

	transitions chan Transition

	mu      sync.Mutex
	last    State
	running bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for the state file at path.
// If logger is nil, a default logger writing to stderr is used.
func NewWatcher(path string, logger *log.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("netstate: path cannot be empty")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[netstate] ", log.LstdFlags)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:         path,
		logger:       logger,
		watcher:      fsw,
		PollInterval: DefaultPollInterval,
		transitions:  make(chan Transition, 8),
	}, nil
}

// Transitions returns the channel that emits state transitions.
// It is closed when the watcher is stopped.
func (w *Watcher) Transitions() <-chan Transition {
	return w.transitions
}

// Current returns the last observed state.
func (w *Watcher) Current() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Start reads the initial state and begins watching.
// The state file's directory is watched rather than the file itself, so
// atomic rename-into-place writes are seen.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("netstate: watcher already running")
	}
	w.running = true
	w.last = ReadFile(w.path)
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create netstate directory: %w", err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch netstate directory %s: %w", dir, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Printf("Watching %s (initial: online=%t metered=%t)",
		w.path, w.last.Online, w.last.Metered)
	return nil
}

// Stop shuts the watcher down and closes the transitions channel.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	close(w.transitions)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.refresh(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)

		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

// refresh re-reads the state file and emits a transition if it changed.
func (w *Watcher) refresh(ctx context.Context) {
	next := ReadFile(w.path)

	w.mu.Lock()
	prev := w.last
	if next == prev {
		w.mu.Unlock()
		return
	}
	w.last = next
	w.mu.Unlock()

	w.logger.Printf("State change: online=%t metered=%t", next.Online, next.Metered)

	select {
	case w.transitions <- Transition{From: prev, To: next}:
	case <-ctx.Done():
	}
}

// ReadFile parses a state file. A missing or unreadable file is treated as
// online and unmetered: the queue would rather attempt a sync and classify
// the failure than sit on a backlog because a shim never wrote the file.
func ReadFile(path string) State {
	fallback := State{Online: true, Metered: false}

	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fallback
	}
	return st
}

// WriteFile persists a state atomically via rename, for shims and tests.
func WriteFile(path string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal netstate: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write netstate: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace netstate: %w", err)
	}
	return nil
}
