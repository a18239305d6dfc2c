package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/podlog/podlog/internal/match"
	"github.com/podlog/podlog/internal/ui"
)

var (
	recordPlayers []string
	recordWinner  string
	recordDate    string
	recordNotes   string
	recordNames   []string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a match into the offline queue",
	Long: `Record a finished match. The match is queued locally and synced to the
server later; recording works fully offline.

Each --player takes a player-id:deck-id pair. The winner pair must be one
of the players. Display names given with --name are captured as snapshots
so the queue stays readable even if an entity is renamed or deleted.

Example:
  podlog record \
    --player p1:d1 --player p2:d2 --player p3:d3 \
    --winner p1:d1 \
    --name player:p1="Ana" --name deck:d1="Gruul Stompy"`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		payload, snapshots, err := buildPayload()
		if err != nil {
			fatal("Error: %v", err)
		}
		if err := payload.Validate(); err != nil {
			fatal("Error: %v", err)
		}

		cfg := loadConfig()
		store := openStore(ctx, cfg)
		defer store.Close()

		entry, err := store.Add(ctx, payload, snapshots)
		if err != nil {
			fatal("Error queueing match: %v", err)
		}
		if entry == nil {
			fmt.Println("An identical match was recorded moments ago; nothing queued.")
			return
		}

		fmt.Printf("%s Queued match %s (%d players)\n",
			ui.RenderOK("✓"), ui.RenderDim(entry.ID), len(payload.Players))
	},
}

func init() {
	recordCmd.Flags().StringArrayVar(&recordPlayers, "player", nil,
		"participant as player-id:deck-id (repeat, at least 3)")
	recordCmd.Flags().StringVar(&recordWinner, "winner", "",
		"winning pair as player-id:deck-id")
	recordCmd.Flags().StringVar(&recordDate, "date", "",
		"match date (YYYY-MM-DD, default today)")
	recordCmd.Flags().StringVar(&recordNotes, "notes", "", "free-form notes")
	recordCmd.Flags().StringArrayVar(&recordNames, "name", nil,
		`display-name snapshot as player:<id>=<name> or deck:<id>=<name>`)
	_ = recordCmd.MarkFlagRequired("player")
	_ = recordCmd.MarkFlagRequired("winner")
}

func buildPayload() (*match.Payload, match.Snapshots, error) {
	snapshots := match.Snapshots{
		Players: make(map[string]string),
		Decks:   make(map[string]string),
	}

	winnerPlayer, winnerDeck, err := splitPair(recordWinner)
	if err != nil {
		return nil, snapshots, fmt.Errorf("invalid --winner: %w", err)
	}

	payload := &match.Payload{
		WinnerPlayerID: winnerPlayer,
		WinnerDeckID:   winnerDeck,
		Notes:          recordNotes,
		Date:           time.Now().UTC(),
	}

	for _, raw := range recordPlayers {
		playerID, deckID, err := splitPair(raw)
		if err != nil {
			return nil, snapshots, fmt.Errorf("invalid --player %q: %w", raw, err)
		}
		payload.Players = append(payload.Players, match.Participant{
			PlayerID: playerID,
			DeckID:   deckID,
			Winner:   playerID == winnerPlayer && deckID == winnerDeck,
		})
	}

	if recordDate != "" {
		d, err := time.Parse("2006-01-02", recordDate)
		if err != nil {
			return nil, snapshots, fmt.Errorf("invalid --date %q: %w", recordDate, err)
		}
		payload.Date = d
	}

	for _, raw := range recordNames {
		kind, id, name, err := splitName(raw)
		if err != nil {
			return nil, snapshots, err
		}
		switch kind {
		case "player":
			snapshots.Players[id] = name
		case "deck":
			snapshots.Decks[id] = name
		default:
			return nil, snapshots, fmt.Errorf("invalid --name %q: kind must be player or deck", raw)
		}
	}

	return payload, snapshots, nil
}

func splitPair(raw string) (string, string, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected player-id:deck-id")
	}
	return parts[0], parts[1], nil
}

func splitName(raw string) (kind, id, name string, err error) {
	kindRest := strings.SplitN(raw, ":", 2)
	if len(kindRest) != 2 {
		return "", "", "", fmt.Errorf("invalid --name %q: expected kind:id=name", raw)
	}
	idName := strings.SplitN(kindRest[1], "=", 2)
	if len(idName) != 2 || idName[0] == "" || idName[1] == "" {
		return "", "", "", fmt.Errorf("invalid --name %q: expected kind:id=name", raw)
	}
	return kindRest[0], idName[0], idName[1], nil
}
