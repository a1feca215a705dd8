package storage

import (
	"context"
	"time"

	"github.com/mcoot/tradegame-bot/internal/model"
)

// Storage defines the interface for data persistence.
//
// AdjustInventory and SettleTrade are single calls so that each backend
// can make them all-or-nothing: an in-flight settlement either applies
// every adjustment and the status transition, or none of them.
type Storage interface {
	// Team operations
	SaveTeam(ctx context.Context, team *model.Team) error
	GetTeam(ctx context.Context, id model.TeamID) (*model.Team, error)
	GetTeamByName(ctx context.Context, name string) (*model.Team, error)
	ListTeams(ctx context.Context) ([]*model.Team, error)

	// Card catalog operations
	SaveCard(ctx context.Context, card *model.Card) error
	GetCard(ctx context.Context, id model.CardID) (*model.Card, error)
	FindCard(ctx context.Context, key string) (*model.Card, error)
	ListCards(ctx context.Context) ([]*model.Card, error)

	// Role credential operations
	SaveRoleCredential(ctx context.Context, cred *model.RoleCredential) error
	ListRoleCredentials(ctx context.Context) ([]*model.RoleCredential, error)

	// Inventory operations
	GetInventoryLine(ctx context.Context, teamID model.TeamID, cardID model.CardID) (*model.InventoryLine, error)
	ListInventory(ctx context.Context, teamID model.TeamID) ([]*model.InventoryLine, error)
	// AdjustInventory applies delta to the (team, card) line as one
	// transaction. It fails with model.ErrInsufficientQuantity if the
	// result would be negative, and deletes the line when it reaches zero.
	AdjustInventory(ctx context.Context, teamID model.TeamID, cardID model.CardID, delta int) error

	// Mission operations
	SaveMission(ctx context.Context, mission *model.Mission) error
	GetMissionByCode(ctx context.Context, code string) (*model.Mission, error)
	ListMissions(ctx context.Context) ([]*model.Mission, error)

	// Announcement operations
	SaveAnnouncement(ctx context.Context, a *model.Announcement) error
	DeleteAnnouncement(ctx context.Context, id model.AnnouncementID) error
	ListUnsentAnnouncements(ctx context.Context) ([]*model.Announcement, error)

	// Trade proposal operations
	SaveTradeProposal(ctx context.Context, p *model.TradeProposal) error
	GetTradeProposal(ctx context.Context, id model.TradeID) (*model.TradeProposal, error)
	// FindPendingTrade returns the pending proposal with exactly the given
	// terms created at or after cutoff, or model.ErrTradeNotFound.
	FindPendingTrade(ctx context.Context, terms model.TradeTerms, cutoff time.Time) (*model.TradeProposal, error)
	// SettleTrade transitions the proposal pending -> completed and applies
	// all four inventory adjustments atomically, recording confirmer.
	// It fails with model.ErrTradeNotPending if the proposal already left
	// the pending state (exactly one concurrent confirmer wins), with
	// model.ErrSelfConfirmation if confirmer already asserted the proposal,
	// and with model.ErrInsufficientQuantity if either side no longer holds
	// enough; in every failure case no inventory is mutated.
	SettleTrade(ctx context.Context, id model.TradeID, confirmer string) error
	// ExpireTrades marks pending proposals created before cutoff as
	// expired and returns how many were swept.
	ExpireTrades(ctx context.Context, cutoff time.Time) (int, error)
}
