package fingerprint

import (
	"testing"
	"time"

	"github.com/podlog/podlog/internal/match"
)

func testPayload() *match.Payload {
	return &match.Payload{
		Players: []match.Participant{
			{PlayerID: "p1", DeckID: "d1", Winner: true},
			{PlayerID: "p2", DeckID: "d2"},
			{PlayerID: "p3", DeckID: "d3"},
		},
		WinnerPlayerID: "p1",
		WinnerDeckID:   "d1",
		Date:           time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Notes:          "league night",
	}
}

func TestSumDeterministic(t *testing.T) {
	a := Sum(testPayload())
	b := Sum(testPayload())
	if a != b {
		t.Errorf("same payload hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestSumPermutationInvariant(t *testing.T) {
	p := testPayload()
	reordered := testPayload()
	reordered.Players = []match.Participant{
		reordered.Players[2],
		reordered.Players[0],
		reordered.Players[1],
	}

	if Sum(p) != Sum(reordered) {
		t.Error("participant order changed the fingerprint")
	}
}

func TestSumScalarChanges(t *testing.T) {
	base := Sum(testPayload())

	mutations := map[string]func(*match.Payload){
		"winner player": func(p *match.Payload) { p.WinnerPlayerID = "p2" },
		"winner deck":   func(p *match.Payload) { p.WinnerDeckID = "d2" },
		"date":          func(p *match.Payload) { p.Date = p.Date.AddDate(0, 0, 1) },
		"notes":         func(p *match.Payload) { p.Notes = "casual" },
		"deck swap":     func(p *match.Payload) { p.Players[1].DeckID = "d9" },
	}

	for name, mutate := range mutations {
		p := testPayload()
		mutate(p)
		if Sum(p) == base {
			t.Errorf("%s change did not alter the fingerprint", name)
		}
	}
}

func TestSumTimezoneNormalized(t *testing.T) {
	p := testPayload()

	shifted := testPayload()
	loc := time.FixedZone("UTC+2", 2*3600)
	shifted.Date = shifted.Date.In(loc)

	if Sum(p) != Sum(shifted) {
		t.Error("same instant in a different zone changed the fingerprint")
	}
}
