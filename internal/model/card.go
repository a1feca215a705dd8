package model

// CardID uniquely identifies a catalog card
type CardID string

// Card is immutable catalog reference data. Cards are looked up by their
// catalog number or by either display name.
type Card struct {
	ID     CardID `json:"id"`
	Number string `json:"number"`
	NameZH string `json:"name_zh"`
	NameEN string `json:"name_en,omitempty"`
}

// DisplayName returns the name shown in replies
func (c *Card) DisplayName() string {
	if c.NameZH != "" {
		return c.NameZH
	}
	return c.NameEN
}

// Matches reports whether key refers to this card by number or name
func (c *Card) Matches(key string) bool {
	if key == "" {
		return false
	}
	return key == c.Number || key == c.NameZH || key == c.NameEN
}

// InventoryLine is the quantity of one card held by one team.
// A line with quantity zero is deleted, never stored.
type InventoryLine struct {
	TeamID   TeamID `json:"team_id"`
	CardID   CardID `json:"card_id"`
	Quantity int    `json:"quantity"`
}
