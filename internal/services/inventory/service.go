package inventory

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/storage"
)

// Line is an inventory line joined with its catalog card for display
type Line struct {
	Card     *model.Card
	Quantity int
}

// Service is the per-team card ledger
type Service struct {
	storage storage.Storage
	logger  *slog.Logger
}

// New creates a new inventory service
func New(storage storage.Storage, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// ResolveCard looks a card up by catalog number or either display name
func (s *Service) ResolveCard(ctx context.Context, key string) (*model.Card, error) {
	return s.storage.FindCard(ctx, key)
}

// Add credits a team with qty of the card identified by key
func (s *Service) Add(ctx context.Context, teamID model.TeamID, cardKey string, qty int) (*model.Card, error) {
	if qty <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	card, err := s.storage.FindCard(ctx, cardKey)
	if err != nil {
		return nil, err
	}

	if err := s.storage.AdjustInventory(ctx, teamID, card.ID, qty); err != nil {
		return nil, err
	}

	s.logger.Info("inventory add",
		slog.String("team_id", string(teamID)),
		slog.String("card", card.Number),
		slog.Int("qty", qty),
	)
	return card, nil
}

// Remove debits a team by qty of the card identified by key. The line is
// deleted when it reaches zero; removing more than held fails without
// mutation.
func (s *Service) Remove(ctx context.Context, teamID model.TeamID, cardKey string, qty int) (*model.Card, error) {
	if qty <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	card, err := s.storage.FindCard(ctx, cardKey)
	if err != nil {
		return nil, err
	}

	if err := s.storage.AdjustInventory(ctx, teamID, card.ID, -qty); err != nil {
		return nil, err
	}

	s.logger.Info("inventory remove",
		slog.String("team_id", string(teamID)),
		slog.String("card", card.Number),
		slog.Int("qty", qty),
	)
	return card, nil
}

// Quantity returns how many of a card a team currently holds
func (s *Service) Quantity(ctx context.Context, teamID model.TeamID, cardID model.CardID) (int, error) {
	line, err := s.storage.GetInventoryLine(ctx, teamID, cardID)
	if err != nil {
		if errors.Is(err, model.ErrCardNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return line.Quantity, nil
}

// List returns a team's inventory with cards joined in for display
func (s *Service) List(ctx context.Context, teamID model.TeamID) ([]Line, error) {
	lines, err := s.storage.ListInventory(ctx, teamID)
	if err != nil {
		return nil, err
	}

	result := make([]Line, 0, len(lines))
	for _, line := range lines {
		card, err := s.storage.GetCard(ctx, line.CardID)
		if err != nil {
			return nil, err
		}
		result = append(result, Line{Card: card, Quantity: line.Quantity})
	}
	return result, nil
}
