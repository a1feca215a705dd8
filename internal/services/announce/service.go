package announce

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcoot/tradegame-bot/internal/dependencies/clock"
	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/platform"
	"github.com/mcoot/tradegame-bot/internal/session"
	"github.com/mcoot/tradegame-bot/internal/storage"
)

const (
	// TimeLayout is the command-facing schedule format
	TimeLayout = "2006-01-02 15:04"

	// DefaultDispatchInterval is how often the dispatcher checks for due
	// announcements
	DefaultDispatchInterval = 15 * time.Second
)

// Service schedules announcements and broadcasts them when due.
// Broadcast targets are the users the session store currently knows.
type Service struct {
	storage  storage.Storage
	sessions session.Store
	platform platform.Client
	clock    clock.Clock
	logger   *slog.Logger

	location *time.Location
	interval time.Duration
}

// New creates a new announcement service. Schedule times are interpreted
// in Taiwan local time.
func New(storage storage.Storage, sessions session.Store, client platform.Client, clk clock.Clock, logger *slog.Logger) *Service {
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		loc = time.FixedZone("CST", 8*60*60)
	}
	return &Service{
		storage:  storage,
		sessions: sessions,
		platform: client,
		clock:    clk,
		logger:   logger,
		location: loc,
		interval: DefaultDispatchInterval,
	}
}

// SetInterval overrides the dispatch polling interval
func (s *Service) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Location returns the display timezone for schedule times
func (s *Service) Location() *time.Location {
	return s.location
}

// Schedule stores an announcement for future broadcast. timeStr must be
// in TimeLayout, Taiwan local time.
func (s *Service) Schedule(ctx context.Context, timeStr, message string) (*model.Announcement, error) {
	scheduled, err := time.ParseInLocation(TimeLayout, timeStr, s.location)
	if err != nil {
		return nil, err
	}

	a := &model.Announcement{
		Message:     message,
		ScheduledAt: scheduled.UTC(),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.storage.SaveAnnouncement(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("announcement scheduled",
		slog.Int64("id", int64(a.ID)),
		slog.Time("at", a.ScheduledAt),
	)
	return a, nil
}

// ListPending returns unsent announcements ordered by schedule time
func (s *Service) ListPending(ctx context.Context) ([]*model.Announcement, error) {
	return s.storage.ListUnsentAnnouncements(ctx)
}

// Cancel deletes a scheduled announcement
func (s *Service) Cancel(ctx context.Context, id model.AnnouncementID) error {
	if err := s.storage.DeleteAnnouncement(ctx, id); err != nil {
		return err
	}
	s.logger.Info("announcement cancelled", slog.Int64("id", int64(id)))
	return nil
}

// DispatchDue broadcasts every unsent announcement whose schedule time
// has passed and marks it sent. Delivery failures are logged and do not
// keep the announcement pending.
func (s *Service) DispatchDue(ctx context.Context) (int, error) {
	pending, err := s.storage.ListUnsentAnnouncements(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	sent := 0
	for _, a := range pending {
		if a.ScheduledAt.After(now) {
			continue
		}

		text := "📢 公告：\n" + a.Message
		for _, sess := range s.sessions.List() {
			if err := s.platform.Push(ctx, sess.UserID, text); err != nil {
				s.logger.Error("announcement push failed",
					slog.Int64("id", int64(a.ID)),
					slog.String("user_id", sess.UserID),
					slog.String("error", err.Error()),
				)
			}
		}

		a.Sent = true
		if err := s.storage.SaveAnnouncement(ctx, a); err != nil {
			return sent, err
		}
		sent++
		s.logger.Info("announcement sent", slog.Int64("id", int64(a.ID)))
	}
	return sent, nil
}

// Start runs the dispatch loop until the context is cancelled
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.DispatchDue(ctx); err != nil {
					s.logger.Error("announcement dispatch failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}
