package model

import "errors"

// Common errors used across the application
var (
	// Team errors
	ErrTeamNotFound = errors.New("team not found")
	ErrTeamExists   = errors.New("team already exists")

	// Card errors
	ErrCardNotFound = errors.New("card not found")
	ErrCardExists   = errors.New("card already exists")

	// Inventory errors
	ErrInsufficientQuantity = errors.New("insufficient card quantity")
	ErrInvalidQuantity      = errors.New("quantity must be positive")

	// Credential and session errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCredentialExists   = errors.New("credential already resolves")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrUnauthorized       = errors.New("not authorized for this team")

	// Mission errors
	ErrMissionNotFound = errors.New("mission not found")
	ErrMissionExists   = errors.New("mission code already exists")

	// Announcement errors
	ErrAnnouncementNotFound = errors.New("announcement not found")

	// Trade errors
	ErrTradeNotFound    = errors.New("trade proposal not found")
	ErrTradeNotPending  = errors.New("trade proposal is no longer pending")
	ErrSameTeamTrade    = errors.New("a team cannot trade with itself")
	ErrUnbalancedSwap   = errors.New("same-card swaps must have equal quantities")
	ErrTradeNotAllowed  = errors.New("trades require an administrative identity")
	ErrSelfConfirmation = errors.New("user has already confirmed this proposal")
)
