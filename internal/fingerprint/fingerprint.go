// Package fingerprint derives a stable content hash from a match payload.
//
// The hash identifies the semantic content of a pending match independent of
// the client-generated queue id, and is used purely for duplicate detection.
// Two payloads that differ only in participant ordering hash identically;
// any scalar difference (winner, date, notes) changes the hash.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/podlog/podlog/internal/match"
)

// Sum computes the canonical SHA-256 digest of a payload.
//
// The canonical form sorts participant pairs by (player id, deck id) so the
// digest is invariant to the order players were entered in.
func Sum(p *match.Payload) string {
	pairs := make([]string, 0, len(p.Players))
	for _, pl := range p.Players {
		pairs = append(pairs, fmt.Sprintf("%s:%s:%t", pl.PlayerID, pl.DeckID, pl.Winner))
	}
	sort.Strings(pairs)

	var b strings.Builder
	b.WriteString(strings.Join(pairs, "|"))
	b.WriteString("\n")
	b.WriteString(p.WinnerPlayerID)
	b.WriteString("/")
	b.WriteString(p.WinnerDeckID)
	b.WriteString("\n")
	b.WriteString(p.Date.UTC().Format(time.RFC3339))
	b.WriteString("\n")
	b.WriteString(p.Notes)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
