// Command podlog records tabletop match results offline and syncs them to
// the pod tracker backend when connectivity allows.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/podlog/podlog/internal/config"
	"github.com/podlog/podlog/internal/queue"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "podlog",
	Short: "Offline-first match recorder for pod games",
	Long: `podlog keeps a durable local queue of recorded matches and syncs
them to the server when a connection is available.

Matches recorded while offline are queued, deduplicated, and retried with
backoff. Failures that need your attention (deleted players or decks,
expired sessions, conflicts) stay visible in the queue until you act.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ~/.podlog/config.yaml)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(daemonCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fatal("Error loading config: %v", err)
	}
	return cfg
}

// openStore opens the queue database or exits. The caller must Close it.
func openStore(ctx context.Context, cfg *config.Config) *queue.Store {
	store, err := queue.Open(cfg.DB.Path)
	if err != nil {
		fatal("Error opening queue database: %v", err)
	}
	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close()
		fatal("Error initializing queue schema: %v", err)
	}
	store.DedupWindow = cfg.Sync.DedupWindow
	return store
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
