package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/podlog/podlog/internal/engine"
	"github.com/podlog/podlog/internal/netstate"
	"github.com/podlog/podlog/internal/remote"
)

var daemonInterval time.Duration

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Watches the connectivity state file for online/offline transitions
  2. Syncs the backlog automatically when connectivity returns (unless the
     connection is metered, in which case the pending count is logged and
     sync waits for an explicit 'podlog sync')
  3. Periodically retries the backlog while online
  4. Shuts down cleanly on SIGINT/SIGTERM`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := cfg.RequireRemote(); err != nil {
			fatal("Error: %v", err)
		}

		logger := daemonLogger(cfg.Log.File)

		ctx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store := openStore(ctx, cfg)
		defer store.Close()

		client := remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.Token)
		eng := engine.New(store, client, logger)

		orch := engine.NewOrchestrator(store, eng, logger)
		orch.BackoffBase = cfg.Sync.BackoffBase
		orch.BackoffMax = cfg.Sync.BackoffMax
		orch.HoldWindow = cfg.Sync.HoldWindow
		orch.OnAllSynced(func() {
			logger.Printf("Backlog drained")
		})

		watcher, err := netstate.NewWatcher(cfg.Netstate.Path, logger)
		if err != nil {
			fatal("Error creating connectivity watcher: %v", err)
		}
		watcher.PollInterval = cfg.Netstate.PollInterval
		if err := watcher.Start(ctx); err != nil {
			fatal("Error starting connectivity watcher: %v", err)
		}
		defer watcher.Stop()

		policy := netstate.NewPolicy(store, orch, logger)
		policy.OnMeteredPending = func(pending int) {
			logger.Printf("%d matches waiting; run 'podlog sync' to push over metered connection", pending)
		}
		go policy.Run(ctx, watcher.Transitions())

		logger.Printf("Daemon started (interval %s)", daemonInterval)
		fmt.Println("podlog daemon running; Ctrl-C to stop")

		runPeriodic(ctx, orch, watcher, logger)

		logger.Printf("Daemon stopped")
	},
}

// runPeriodic drives the interval-based sync loop until shutdown.
// An initial pass runs at startup to pick up anything recorded while the
// daemon was down.
func runPeriodic(ctx context.Context, orch *engine.Orchestrator, watcher *netstate.Watcher, logger *log.Logger) {
	ticker := time.NewTicker(daemonInterval)
	defer ticker.Stop()

	syncIfAllowed := func() {
		st := watcher.Current()
		if !st.Online || st.Metered {
			return
		}
		if _, err := orch.SyncAllAuto(ctx); err != nil && ctx.Err() == nil {
			logger.Printf("Warning: periodic sync failed: %v", err)
		}
	}

	syncIfAllowed()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncIfAllowed()
		}
	}
}

// daemonLogger writes to the rotated log file when configured, stderr
// otherwise.
func daemonLogger(file string) *log.Logger {
	if file == "" {
		return log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, "[daemon] ", log.LstdFlags)
}

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 5*time.Minute,
		"how often to retry the backlog while online")
}
