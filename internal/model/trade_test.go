package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHasConfirmer(t *testing.T) {
	p := &TradeProposal{Confirmers: []string{"u1"}}
	assert.True(t, p.HasConfirmer("u1"))
	assert.False(t, p.HasConfirmer("u2"))
}

func TestMatchableAt(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	window := time.Minute

	p := &TradeProposal{Status: TradeStatusPending, CreatedAt: created}
	assert.True(t, p.MatchableAt(created.Add(59*time.Second), window))
	assert.True(t, p.MatchableAt(created.Add(time.Minute), window))
	assert.False(t, p.MatchableAt(created.Add(61*time.Second), window))

	settled := &TradeProposal{Status: TradeStatusCompleted, CreatedAt: created}
	assert.False(t, settled.MatchableAt(created, window))
}

func TestCardMatches(t *testing.T) {
	card := &Card{ID: "card_16", Number: "16", NameZH: "紅寶石", NameEN: "Ruby"}
	assert.True(t, card.Matches("16"))
	assert.True(t, card.Matches("紅寶石"))
	assert.True(t, card.Matches("Ruby"))
	assert.False(t, card.Matches("ruby"))
	assert.Equal(t, "紅寶石", card.DisplayName())

	unnamed := &Card{ID: "card_1", Number: "1", NameEN: "Ace"}
	assert.False(t, unnamed.Matches(""))
	assert.Equal(t, "Ace", unnamed.DisplayName())
}
