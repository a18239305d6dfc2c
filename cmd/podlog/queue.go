package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/podlog/podlog/internal/queue"
	"github.com/podlog/podlog/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the offline queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued matches, oldest first",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()

		entries, err := store.ListByStatus(ctx)
		if err != nil {
			fatal("Error listing queue: %v", err)
		}

		if len(entries) == 0 {
			fmt.Println("Queue is empty.")
			return
		}

		fmt.Printf("%s %d queued match(es)\n\n", ui.RenderAccent("▍"), len(entries))
		for _, e := range entries {
			fmt.Printf("%s  %s  %s  retries=%d\n",
				ui.RenderDim(e.ID),
				ui.RenderStatus(e.Status),
				e.QueuedAt.Local().Format("2006-01-02 15:04"),
				e.RetryCount)
			for _, p := range e.Payload.Players {
				marker := " "
				if p.Winner {
					marker = ui.RenderOK("★")
				}
				fmt.Printf("  %s %s — %s\n", marker,
					e.Snapshots.PlayerName(p.PlayerID),
					e.Snapshots.DeckName(p.DeckID))
			}
			if e.LastError != nil {
				fmt.Printf("  %s %s\n", ui.RenderError("!"), e.LastError.Message)
			}
			fmt.Println()
		}
	},
}

var queueRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Discard a queued match",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()

		if err := store.Delete(ctx, args[0]); err != nil {
			fatal("Error removing entry: %v", err)
		}
		fmt.Printf("%s Removed %s\n", ui.RenderOK("✓"), args[0])
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every queued match",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()

		count, err := store.Count(ctx)
		if err != nil {
			fatal("Error counting queue: %v", err)
		}
		if err := store.Clear(ctx); err != nil {
			fatal("Error clearing queue: %v", err)
		}
		fmt.Printf("%s Cleared %d entries\n", ui.RenderOK("✓"), count)
	},
}

var queueCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print how many matches are waiting to sync",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()

		pending, err := store.Count(ctx, queue.StatusPending, queue.StatusError)
		if err != nil {
			fatal("Error counting queue: %v", err)
		}
		fmt.Println(pending)
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRmCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueCountCmd)
}
