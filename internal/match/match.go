// Package match defines the match payload recorded by the client and the
// validation rules it must satisfy before it may be queued.
//
// A match is a game between three or more players, each piloting a deck,
// with exactly one winning player/deck pair. The payload is immutable once
// queued; editing a queued match is modeled as delete-and-recreate.
package match

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Participant is one player/deck pairing in a match.
type Participant struct {
	PlayerID string `json:"player_id" validate:"required"`
	DeckID   string `json:"deck_id" validate:"required"`
	Winner   bool   `json:"winner"`
}

// Payload is the domain request eventually submitted to the server.
//
// WinnerPlayerID and WinnerDeckID must reference one of the participants.
type Payload struct {
	Players        []Participant `json:"players" validate:"required,min=3,dive"`
	WinnerPlayerID string        `json:"winner_player_id" validate:"required"`
	WinnerDeckID   string        `json:"winner_deck_id" validate:"required"`
	Date           time.Time     `json:"match_date" validate:"required"`
	Notes          string        `json:"notes,omitempty"`
}

// Snapshots holds denormalized display names for every entity referenced by
// a payload, captured at enqueue time. They let the UI render a queued match
// even if a player or deck is later renamed or deleted server-side.
type Snapshots struct {
	Players map[string]string `json:"players"`
	Decks   map[string]string `json:"decks"`
}

// PlayerName returns the captured name for a player id, falling back to the
// raw id when no snapshot was taken.
func (s Snapshots) PlayerName(id string) string {
	if name, ok := s.Players[id]; ok && name != "" {
		return name
	}
	return id
}

// DeckName returns the captured name for a deck id, falling back to the raw id.
func (s Snapshots) DeckName(id string) string {
	if name, ok := s.Decks[id]; ok && name != "" {
		return name
	}
	return id
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural constraints (tags) and the semantic rules the
// server would reject: at least three players, unique player ids, and a
// winner drawn from the participant list.
func (p *Payload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid match payload: %w", err)
	}

	seen := make(map[string]bool, len(p.Players))
	winnerFound := false
	for _, pl := range p.Players {
		if seen[pl.PlayerID] {
			return fmt.Errorf("invalid match payload: duplicate player %s", pl.PlayerID)
		}
		seen[pl.PlayerID] = true
		if pl.PlayerID == p.WinnerPlayerID && pl.DeckID == p.WinnerDeckID {
			winnerFound = true
		}
	}
	if !winnerFound {
		return fmt.Errorf("invalid match payload: winner %s/%s is not a participant",
			p.WinnerPlayerID, p.WinnerDeckID)
	}

	return nil
}

// PlayerIDs returns the distinct player ids referenced by the payload.
func (p *Payload) PlayerIDs() []string {
	ids := make([]string, 0, len(p.Players))
	seen := make(map[string]bool, len(p.Players))
	for _, pl := range p.Players {
		if !seen[pl.PlayerID] {
			seen[pl.PlayerID] = true
			ids = append(ids, pl.PlayerID)
		}
	}
	return ids
}

// DeckIDs returns the distinct deck ids referenced by the payload.
func (p *Payload) DeckIDs() []string {
	ids := make([]string, 0, len(p.Players))
	seen := make(map[string]bool, len(p.Players))
	for _, pl := range p.Players {
		if !seen[pl.DeckID] {
			seen[pl.DeckID] = true
			ids = append(ids, pl.DeckID)
		}
	}
	return ids
}
