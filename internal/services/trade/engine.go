package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/tradegame-bot/internal/dependencies/clock"
	"github.com/mcoot/tradegame-bot/internal/dependencies/random"
	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/platform"
	"github.com/mcoot/tradegame-bot/internal/storage"
)

const (
	// TradeIDLength is the length of generated proposal IDs
	TradeIDLength = 12
	// TradeIDAlphabet is the characters used in proposal IDs
	TradeIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Outcome is what a submission did to the protocol state
type Outcome int

// Submission outcomes
const (
	// OutcomeCreated: no matching pending proposal existed; a new one now
	// awaits a second confirmation
	OutcomeCreated Outcome = iota
	// OutcomeAlreadyConfirmed: the submitting user had already asserted
	// the matched proposal; nothing changed
	OutcomeAlreadyConfirmed
	// OutcomeCompleted: this submission was the second distinct
	// confirmation and the trade settled
	OutcomeCompleted
)

// Result is the outcome of a submission together with the proposal it
// affected
type Result struct {
	Outcome  Outcome
	Proposal *model.TradeProposal
}

// Config holds trade protocol timing
type Config struct {
	// Window is how long a proposal stays matchable after creation
	Window time.Duration
	// SweepInterval is how often the background sweep expires stale
	// proposals
	SweepInterval time.Duration
}

// DefaultConfig returns the protocol's standard timing
func DefaultConfig() Config {
	return Config{
		Window:        60 * time.Second,
		SweepInterval: 30 * time.Second,
	}
}

// Engine runs the dual-confirmation trade protocol: a proposal is created
// by the first matching submission and settled when a second, distinct,
// independently authorized user submits identical terms within the
// window. Settlement happens at most once per proposal; the storage
// layer's compare-and-set on status decides races.
type Engine struct {
	storage  storage.Storage
	platform platform.Client
	clock    clock.Clock
	random   random.Random
	logger   *slog.Logger
	cfg      Config
}

// NewEngine creates a trade engine
func NewEngine(
	storage storage.Storage,
	client platform.Client,
	clk clock.Clock,
	rnd random.Random,
	logger *slog.Logger,
	cfg Config,
) *Engine {
	if cfg.Window == 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Engine{
		storage:  storage,
		platform: client,
		clock:    clk,
		random:   rnd,
		logger:   logger,
		cfg:      cfg,
	}
}

// Window returns how long a pending proposal stays confirmable
func (e *Engine) Window() time.Duration {
	return e.cfg.Window
}

// Submit runs one step of the protocol for the given user and terms.
// Re-sending the same command is the confirmation act itself: the first
// submission creates a pending proposal, an identical submission from a
// second user settles it, and a repeat from the same user is a no-op.
func (e *Engine) Submit(ctx context.Context, userID string, actor model.Identity, terms model.TradeTerms) (*Result, error) {
	if err := e.authorize(actor, terms); err != nil {
		return nil, err
	}
	if err := e.checkPreconditions(ctx, terms); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	cutoff := now.Add(-e.cfg.Window)

	proposal, err := e.storage.FindPendingTrade(ctx, terms, cutoff)
	if err != nil {
		if errors.Is(err, model.ErrTradeNotFound) {
			return e.create(ctx, userID, terms, now)
		}
		return nil, err
	}

	if proposal.HasConfirmer(userID) {
		return &Result{Outcome: OutcomeAlreadyConfirmed, Proposal: proposal}, nil
	}

	err = e.storage.SettleTrade(ctx, proposal.ID, userID)
	switch {
	case err == nil:
		proposal.Status = model.TradeStatusCompleted
		proposal.Confirmers = append(proposal.Confirmers, userID)
		e.notifyProposer(proposal, userID)
		e.logger.Info("trade settled",
			slog.String("trade_id", string(proposal.ID)),
			slog.String("confirmer", userID),
		)
		return &Result{Outcome: OutcomeCompleted, Proposal: proposal}, nil

	case errors.Is(err, model.ErrSelfConfirmation):
		return &Result{Outcome: OutcomeAlreadyConfirmed, Proposal: proposal}, nil

	case errors.Is(err, model.ErrTradeNotPending) || errors.Is(err, model.ErrTradeNotFound):
		// Lost a race with a concurrent confirmation or the sweep; this
		// submission starts a fresh proposal.
		return e.create(ctx, userID, terms, now)

	default:
		return nil, err
	}
}

// Sweep expires pending proposals older than the window. Matching also
// checks age inline, so the sweep only bounds stale-proposal growth.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	return e.storage.ExpireTrades(ctx, e.clock.Now().Add(-e.cfg.Window))
}

// StartSweeper runs the expiry sweep on a fixed interval until the
// context is cancelled
func (e *Engine) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count, err := e.Sweep(ctx)
				if err != nil {
					e.logger.Error("trade sweep failed", slog.String("error", err.Error()))
					continue
				}
				if count > 0 {
					e.logger.Info("expired stale trade proposals", slog.Int("count", count))
				}
			}
		}
	}()
}

// authorize requires an administrative identity whose scope covers both
// teams. Team identities can never trade.
func (e *Engine) authorize(actor model.Identity, terms model.TradeTerms) error {
	if !actor.IsAdmin() {
		return model.ErrTradeNotAllowed
	}
	if !actor.CanActOn(terms.TeamA) || !actor.CanActOn(terms.TeamB) {
		return model.ErrUnauthorized
	}
	return nil
}

// checkPreconditions rejects terms that could never settle. Violations
// abort before any proposal is created or matched.
func (e *Engine) checkPreconditions(ctx context.Context, terms model.TradeTerms) error {
	if terms.QtyA <= 0 || terms.QtyB <= 0 {
		return model.ErrInvalidQuantity
	}
	if terms.TeamA == terms.TeamB {
		return model.ErrSameTeamTrade
	}
	if terms.CardA == terms.CardB && terms.QtyA != terms.QtyB {
		return model.ErrUnbalancedSwap
	}

	if held, err := e.quantity(ctx, terms.TeamA, terms.CardA); err != nil {
		return err
	} else if held < terms.QtyA {
		return model.ErrInsufficientQuantity
	}

	if held, err := e.quantity(ctx, terms.TeamB, terms.CardB); err != nil {
		return err
	} else if held < terms.QtyB {
		return model.ErrInsufficientQuantity
	}

	return nil
}

func (e *Engine) quantity(ctx context.Context, teamID model.TeamID, cardID model.CardID) (int, error) {
	line, err := e.storage.GetInventoryLine(ctx, teamID, cardID)
	if err != nil {
		if errors.Is(err, model.ErrCardNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return line.Quantity, nil
}

// create opens a fresh pending proposal with the submitting user as its
// first confirmer
func (e *Engine) create(ctx context.Context, userID string, terms model.TradeTerms, now time.Time) (*Result, error) {
	proposal := &model.TradeProposal{
		ID:         model.TradeID("trade_" + e.random.String(TradeIDLength, TradeIDAlphabet)),
		Terms:      terms,
		Status:     model.TradeStatusPending,
		Proposer:   userID,
		Confirmers: []string{userID},
		CreatedAt:  now,
	}
	if err := e.storage.SaveTradeProposal(ctx, proposal); err != nil {
		return nil, err
	}

	e.logger.Info("trade proposal created",
		slog.String("trade_id", string(proposal.ID)),
		slog.String("proposer", userID),
	)
	return &Result{Outcome: OutcomeCreated, Proposal: proposal}, nil
}

// notifyProposer tells the original proposer their trade settled.
// Best-effort: delivery failure never rolls back settlement.
func (e *Engine) notifyProposer(p *model.TradeProposal, confirmer string) {
	if p.Proposer == confirmer {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		text := fmt.Sprintf("✅ 您發起的交換已由第二位管理員確認並完成。\n%s", e.describeTerms(ctx, p.Terms))
		if err := e.platform.Push(ctx, p.Proposer, text); err != nil {
			e.logger.Error("trade notification failed",
				slog.String("trade_id", string(p.ID)),
				slog.String("proposer", p.Proposer),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// describeTerms renders terms with display names, falling back to raw
// IDs when lookups fail
func (e *Engine) describeTerms(ctx context.Context, t model.TradeTerms) string {
	teamA, cardA := string(t.TeamA), string(t.CardA)
	teamB, cardB := string(t.TeamB), string(t.CardB)
	if team, err := e.storage.GetTeam(ctx, t.TeamA); err == nil {
		teamA = team.Name
	}
	if team, err := e.storage.GetTeam(ctx, t.TeamB); err == nil {
		teamB = team.Name
	}
	if card, err := e.storage.GetCard(ctx, t.CardA); err == nil {
		cardA = card.DisplayName()
	}
	if card, err := e.storage.GetCard(ctx, t.CardB); err == nil {
		cardB = card.DisplayName()
	}
	return fmt.Sprintf("%s 以 %s x%d 交換 %s 的 %s x%d", teamA, cardA, t.QtyA, teamB, cardB, t.QtyB)
}
