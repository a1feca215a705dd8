package model

import "time"

// TeamID uniquely identifies a team
type TeamID string

// Team is a playing team with a shared login password
type Team struct {
	ID           TeamID    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}
