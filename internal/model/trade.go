package model

import "time"

// TradeID identifies a trade proposal
type TradeID string

// TradeStatus is the lifecycle state of a trade proposal
type TradeStatus string

// Trade proposal states
const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusExpired   TradeStatus = "expired"
)

// TradeTerms is the full term tuple of a proposed trade. Matching is
// order-sensitive: the A/B positions are compared exactly as written by
// the command, even though settlement itself is symmetric.
type TradeTerms struct {
	TeamA TeamID `json:"team_a"`
	TeamB TeamID `json:"team_b"`
	CardA CardID `json:"card_a"`
	QtyA  int    `json:"qty_a"`
	CardB CardID `json:"card_b"`
	QtyB  int    `json:"qty_b"`
}

// TradeProposal is the unit of the dual-confirmation protocol
type TradeProposal struct {
	ID         TradeID     `json:"id"`
	Terms      TradeTerms  `json:"terms"`
	Status     TradeStatus `json:"status"`
	Proposer   string      `json:"proposer"`
	Confirmers []string    `json:"confirmers"`
	CreatedAt  time.Time   `json:"created_at"`
}

// HasConfirmer reports whether the given user has already asserted
// this proposal
func (p *TradeProposal) HasConfirmer(userID string) bool {
	for _, c := range p.Confirmers {
		if c == userID {
			return true
		}
	}
	return false
}

// MatchableAt reports whether the proposal can still accept a
// confirmation at the given instant
func (p *TradeProposal) MatchableAt(now time.Time, window time.Duration) bool {
	return p.Status == TradeStatusPending && now.Sub(p.CreatedAt) <= window
}
