package mission

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/tradegame-bot/internal/dependencies/clock"
	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/storage"
)

// Service tracks scavenger-hunt missions
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a new mission service
func New(storage storage.Storage, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clk,
		logger:  logger,
	}
}

// Complete marks a mission done by the named team. If another team
// already completed it, the mission is returned unchanged with
// alreadyDone set.
func (s *Service) Complete(ctx context.Context, code, teamName string) (m *model.Mission, alreadyDone bool, err error) {
	mission, err := s.storage.GetMissionByCode(ctx, code)
	if err != nil {
		return nil, false, err
	}

	if mission.Completed {
		return mission, true, nil
	}

	now := s.clock.Now().UTC()
	mission.Completed = true
	mission.CompletedAt = &now
	mission.CompletedBy = teamName
	if err := s.storage.SaveMission(ctx, mission); err != nil {
		return nil, false, err
	}

	s.logger.Info("mission completed",
		slog.String("code", mission.Code),
		slog.String("team", teamName),
	)
	return mission, false, nil
}

// Add registers a new mission; duplicate codes are rejected
func (s *Service) Add(ctx context.Context, code, name, description string) (*model.Mission, error) {
	if _, err := s.storage.GetMissionByCode(ctx, code); err == nil {
		return nil, model.ErrMissionExists
	} else if !errors.Is(err, model.ErrMissionNotFound) {
		return nil, err
	}

	mission := &model.Mission{
		Code:        code,
		Name:        name,
		Description: description,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.storage.SaveMission(ctx, mission); err != nil {
		return nil, err
	}
	return mission, nil
}

// Reset returns a mission to the not-completed state
func (s *Service) Reset(ctx context.Context, code string) (*model.Mission, error) {
	mission, err := s.storage.GetMissionByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	mission.Completed = false
	mission.CompletedAt = nil
	mission.CompletedBy = ""
	if err := s.storage.SaveMission(ctx, mission); err != nil {
		return nil, err
	}

	s.logger.Info("mission reset", slog.String("code", mission.Code))
	return mission, nil
}

// List returns all missions ordered by code
func (s *Service) List(ctx context.Context) ([]*model.Mission, error) {
	return s.storage.ListMissions(ctx)
}
