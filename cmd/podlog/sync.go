package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/podlog/podlog/internal/engine"
	"github.com/podlog/podlog/internal/remote"
	"github.com/podlog/podlog/internal/ui"
)

var syncID string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync queued matches to the server now",
	Long: `Push the backlog to the server. With --id, syncs a single entry;
otherwise the whole backlog is processed oldest-first with backoff between
retries. This manual trigger ignores the undo hold window and re-attempts
entries whose retry budget is exhausted.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		if err := cfg.RequireRemote(); err != nil {
			fatal("Error: %v", err)
		}

		store := openStore(ctx, cfg)
		defer store.Close()

		client := remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.Token)
		eng := engine.New(store, client, nil)

		if syncID != "" {
			res, err := eng.SyncOne(ctx, syncID)
			if err != nil {
				fatal("Error syncing %s: %v", syncID, err)
			}
			if res.Synced() {
				fmt.Printf("%s Synced %s -> %s\n", ui.RenderOK("✓"), syncID, res.ServerID)
				return
			}
			fmt.Printf("%s Sync failed: %s\n", ui.RenderError("✗"), res.Strategy.Message)
			if !res.Strategy.Retry {
				fmt.Printf("  action required: %s\n", res.Strategy.UserAction)
			}
			return
		}

		orch := engine.NewOrchestrator(store, eng, nil)
		orch.BackoffBase = cfg.Sync.BackoffBase
		orch.BackoffMax = cfg.Sync.BackoffMax
		orch.OnProgress(func(done, total int) {
			fmt.Printf("\rSyncing %d/%d...", done, total)
		})

		summary, err := orch.SyncAll(ctx)
		fmt.Println()
		if err != nil {
			fatal("Error during sync: %v", err)
		}

		fmt.Printf("%s %d synced, %d failed, %d skipped\n",
			ui.RenderAccent("▍"), summary.Succeeded, summary.Failed, summary.Skipped)
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncID, "id", "", "sync a single queue entry")
}
