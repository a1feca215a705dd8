package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/storage"
)

// Ensure Storage satisfies the storage interface at compile time
var _ storage.Storage = (*Storage)(nil)

// uniqueViolation is the Postgres error code for unique constraint breaks
const uniqueViolation = "23505"

// Storage provides Postgres-backed persistence. Inventory adjustment and
// trade settlement each run inside a single transaction; the
// pending -> completed transition is a guarded UPDATE so exactly one
// concurrent confirmer wins.
type Storage struct {
	pool *pgxpool.Pool
}

// New connects to the database and runs migrations
func New(ctx context.Context, databaseURL string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Storage{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Storage) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			number TEXT UNIQUE NOT NULL,
			name_zh TEXT NOT NULL,
			name_en TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS role_credentials (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			team_scope TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS team_cards (
			team_id TEXT NOT NULL REFERENCES teams(id),
			card_id TEXT NOT NULL REFERENCES cards(id),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			PRIMARY KEY (team_id, card_id)
		);`,
		`CREATE TABLE IF NOT EXISTS missions (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ,
			completed_by TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS announcements (
			id BIGSERIAL PRIMARY KEY,
			message TEXT NOT NULL,
			scheduled_at TIMESTAMPTZ NOT NULL,
			sent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS trade_proposals (
			id TEXT PRIMARY KEY,
			team_a TEXT NOT NULL REFERENCES teams(id),
			team_b TEXT NOT NULL REFERENCES teams(id),
			card_a TEXT NOT NULL REFERENCES cards(id),
			qty_a INTEGER NOT NULL,
			card_b TEXT NOT NULL REFERENCES cards(id),
			qty_b INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			proposer TEXT NOT NULL,
			confirmers TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS trade_proposals_pending_idx
			ON trade_proposals (status, created_at) WHERE status = 'pending';`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

// Team operations

func (s *Storage) SaveTeam(ctx context.Context, team *model.Team) error {
	const query = `
		INSERT INTO teams (id, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash;`
	_, err := s.pool.Exec(ctx, query, team.ID, team.Name, team.PasswordHash, team.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.ErrTeamExists
		}
		return err
	}
	return nil
}

func (s *Storage) GetTeam(ctx context.Context, id model.TeamID) (*model.Team, error) {
	const query = `SELECT id, name, password_hash, created_at FROM teams WHERE id = $1;`
	return scanTeam(s.pool.QueryRow(ctx, query, id))
}

func (s *Storage) GetTeamByName(ctx context.Context, name string) (*model.Team, error) {
	const query = `SELECT id, name, password_hash, created_at FROM teams WHERE name = $1;`
	return scanTeam(s.pool.QueryRow(ctx, query, name))
}

func (s *Storage) ListTeams(ctx context.Context) ([]*model.Team, error) {
	const query = `SELECT id, name, password_hash, created_at FROM teams ORDER BY name;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []*model.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func scanTeam(row pgx.Row) (*model.Team, error) {
	var team model.Team
	if err := row.Scan(&team.ID, &team.Name, &team.PasswordHash, &team.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTeamNotFound
		}
		return nil, err
	}
	return &team, nil
}

// Card catalog operations

func (s *Storage) SaveCard(ctx context.Context, card *model.Card) error {
	const query = `
		INSERT INTO cards (id, number, name_zh, name_en)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (id) DO UPDATE
		SET number = EXCLUDED.number, name_zh = EXCLUDED.name_zh, name_en = EXCLUDED.name_en;`
	_, err := s.pool.Exec(ctx, query, card.ID, card.Number, card.NameZH, card.NameEN)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.ErrCardExists
		}
		return err
	}
	return nil
}

func (s *Storage) GetCard(ctx context.Context, id model.CardID) (*model.Card, error) {
	const query = `SELECT id, number, name_zh, COALESCE(name_en, '') FROM cards WHERE id = $1;`
	return scanCard(s.pool.QueryRow(ctx, query, id))
}

func (s *Storage) FindCard(ctx context.Context, key string) (*model.Card, error) {
	const query = `
		SELECT id, number, name_zh, COALESCE(name_en, '')
		FROM cards
		WHERE number = $1 OR name_zh = $1 OR name_en = $1
		LIMIT 1;`
	return scanCard(s.pool.QueryRow(ctx, query, key))
}

func (s *Storage) ListCards(ctx context.Context) ([]*model.Card, error) {
	const query = `SELECT id, number, name_zh, COALESCE(name_en, '') FROM cards ORDER BY number;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*model.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func scanCard(row pgx.Row) (*model.Card, error) {
	var card model.Card
	if err := row.Scan(&card.ID, &card.Number, &card.NameZH, &card.NameEN); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

// Role credential operations

func (s *Storage) SaveRoleCredential(ctx context.Context, cred *model.RoleCredential) error {
	const query = `
		INSERT INTO role_credentials (id, role, password_hash, team_scope, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET role = EXCLUDED.role, password_hash = EXCLUDED.password_hash,
			team_scope = EXCLUDED.team_scope;`
	_, err := s.pool.Exec(ctx, query, cred.ID, cred.Role, cred.PasswordHash, cred.Scope.Join(), cred.CreatedAt)
	return err
}

func (s *Storage) ListRoleCredentials(ctx context.Context) ([]*model.RoleCredential, error) {
	const query = `SELECT id, role, password_hash, team_scope, created_at FROM role_credentials ORDER BY id;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*model.RoleCredential
	for rows.Next() {
		var cred model.RoleCredential
		var scope string
		if err := rows.Scan(&cred.ID, &cred.Role, &cred.PasswordHash, &scope, &cred.CreatedAt); err != nil {
			return nil, err
		}
		cred.Scope = model.ParseScope(scope)
		creds = append(creds, &cred)
	}
	return creds, rows.Err()
}

// Inventory operations

func (s *Storage) GetInventoryLine(ctx context.Context, teamID model.TeamID, cardID model.CardID) (*model.InventoryLine, error) {
	const query = `SELECT team_id, card_id, quantity FROM team_cards WHERE team_id = $1 AND card_id = $2;`
	var line model.InventoryLine
	err := s.pool.QueryRow(ctx, query, teamID, cardID).Scan(&line.TeamID, &line.CardID, &line.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrCardNotFound
		}
		return nil, err
	}
	return &line, nil
}

func (s *Storage) ListInventory(ctx context.Context, teamID model.TeamID) ([]*model.InventoryLine, error) {
	const query = `SELECT team_id, card_id, quantity FROM team_cards WHERE team_id = $1 ORDER BY card_id;`
	rows, err := s.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*model.InventoryLine
	for rows.Next() {
		var line model.InventoryLine
		if err := rows.Scan(&line.TeamID, &line.CardID, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, &line)
	}
	return lines, rows.Err()
}

func (s *Storage) AdjustInventory(ctx context.Context, teamID model.TeamID, cardID model.CardID, delta int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := adjustInTx(ctx, tx, teamID, cardID, delta); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// adjustInTx applies one line delta inside an open transaction, locking
// the row for the duration
func adjustInTx(ctx context.Context, tx pgx.Tx, teamID model.TeamID, cardID model.CardID, delta int) error {
	const selectQuery = `SELECT quantity FROM team_cards WHERE team_id = $1 AND card_id = $2 FOR UPDATE;`
	current := 0
	err := tx.QueryRow(ctx, selectQuery, teamID, cardID).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	next := current + delta
	switch {
	case next < 0:
		return model.ErrInsufficientQuantity
	case next == 0:
		_, err = tx.Exec(ctx, `DELETE FROM team_cards WHERE team_id = $1 AND card_id = $2;`, teamID, cardID)
	default:
		const upsert = `
			INSERT INTO team_cards (team_id, card_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (team_id, card_id) DO UPDATE SET quantity = EXCLUDED.quantity;`
		_, err = tx.Exec(ctx, upsert, teamID, cardID, next)
	}
	return err
}

// Mission operations

func (s *Storage) SaveMission(ctx context.Context, mission *model.Mission) error {
	const query = `
		INSERT INTO missions (code, name, description, completed, completed_at, completed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description,
			completed = EXCLUDED.completed, completed_at = EXCLUDED.completed_at,
			completed_by = EXCLUDED.completed_by;`
	_, err := s.pool.Exec(ctx, query,
		mission.Code, mission.Name, mission.Description,
		mission.Completed, mission.CompletedAt, mission.CompletedBy, mission.CreatedAt)
	return err
}

func (s *Storage) GetMissionByCode(ctx context.Context, code string) (*model.Mission, error) {
	const query = `
		SELECT code, name, description, completed, completed_at, COALESCE(completed_by, ''), created_at
		FROM missions WHERE code = $1;`
	return scanMission(s.pool.QueryRow(ctx, query, code))
}

func (s *Storage) ListMissions(ctx context.Context) ([]*model.Mission, error) {
	const query = `
		SELECT code, name, description, completed, completed_at, COALESCE(completed_by, ''), created_at
		FROM missions ORDER BY code;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []*model.Mission
	for rows.Next() {
		mission, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, mission)
	}
	return missions, rows.Err()
}

func scanMission(row pgx.Row) (*model.Mission, error) {
	var mission model.Mission
	err := row.Scan(&mission.Code, &mission.Name, &mission.Description,
		&mission.Completed, &mission.CompletedAt, &mission.CompletedBy, &mission.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrMissionNotFound
		}
		return nil, err
	}
	return &mission, nil
}

// Announcement operations

func (s *Storage) SaveAnnouncement(ctx context.Context, a *model.Announcement) error {
	if a.ID == 0 {
		const insert = `
			INSERT INTO announcements (message, scheduled_at, sent, created_at)
			VALUES ($1, $2, $3, $4) RETURNING id;`
		return s.pool.QueryRow(ctx, insert, a.Message, a.ScheduledAt, a.Sent, a.CreatedAt).Scan(&a.ID)
	}

	const update = `
		UPDATE announcements SET message = $2, scheduled_at = $3, sent = $4 WHERE id = $1;`
	_, err := s.pool.Exec(ctx, update, a.ID, a.Message, a.ScheduledAt, a.Sent)
	return err
}

func (s *Storage) DeleteAnnouncement(ctx context.Context, id model.AnnouncementID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM announcements WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAnnouncementNotFound
	}
	return nil
}

func (s *Storage) ListUnsentAnnouncements(ctx context.Context) ([]*model.Announcement, error) {
	const query = `
		SELECT id, message, scheduled_at, sent, created_at
		FROM announcements WHERE NOT sent ORDER BY scheduled_at;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []*model.Announcement
	for rows.Next() {
		var a model.Announcement
		if err := rows.Scan(&a.ID, &a.Message, &a.ScheduledAt, &a.Sent, &a.CreatedAt); err != nil {
			return nil, err
		}
		pending = append(pending, &a)
	}
	return pending, rows.Err()
}

// Trade proposal operations

func (s *Storage) SaveTradeProposal(ctx context.Context, p *model.TradeProposal) error {
	const query = `
		INSERT INTO trade_proposals
			(id, team_a, team_b, card_a, qty_a, card_b, qty_b, status, proposer, confirmers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, confirmers = EXCLUDED.confirmers;`
	t := p.Terms
	_, err := s.pool.Exec(ctx, query,
		p.ID, t.TeamA, t.TeamB, t.CardA, t.QtyA, t.CardB, t.QtyB,
		p.Status, p.Proposer, strings.Join(p.Confirmers, ","), p.CreatedAt)
	return err
}

func (s *Storage) GetTradeProposal(ctx context.Context, id model.TradeID) (*model.TradeProposal, error) {
	const query = `
		SELECT id, team_a, team_b, card_a, qty_a, card_b, qty_b, status, proposer, confirmers, created_at
		FROM trade_proposals WHERE id = $1;`
	return scanTrade(s.pool.QueryRow(ctx, query, id))
}

func (s *Storage) FindPendingTrade(ctx context.Context, terms model.TradeTerms, cutoff time.Time) (*model.TradeProposal, error) {
	const query = `
		SELECT id, team_a, team_b, card_a, qty_a, card_b, qty_b, status, proposer, confirmers, created_at
		FROM trade_proposals
		WHERE status = 'pending'
			AND team_a = $1 AND team_b = $2
			AND card_a = $3 AND qty_a = $4
			AND card_b = $5 AND qty_b = $6
			AND created_at >= $7
		ORDER BY created_at
		LIMIT 1;`
	p, err := scanTrade(s.pool.QueryRow(ctx, query,
		terms.TeamA, terms.TeamB, terms.CardA, terms.QtyA, terms.CardB, terms.QtyB, cutoff))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Storage) SettleTrade(ctx context.Context, id model.TradeID, confirmer string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Guarded status transition: exactly one concurrent confirmer gets a
	// row back, everyone else sees the proposal already settled.
	const claim = `
		UPDATE trade_proposals
		SET status = 'completed',
			confirmers = confirmers || ',' || $2
		WHERE id = $1 AND status = 'pending'
		RETURNING team_a, team_b, card_a, qty_a, card_b, qty_b, confirmers;`

	var t model.TradeTerms
	var confirmers string
	err = tx.QueryRow(ctx, claim, id, confirmer).Scan(
		&t.TeamA, &t.TeamB, &t.CardA, &t.QtyA, &t.CardB, &t.QtyB, &confirmers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.settleFailureReason(ctx, id)
		}
		return err
	}

	// The update appended the new confirmer; everyone before it must differ
	prior := strings.Split(confirmers, ",")
	for _, c := range prior[:len(prior)-1] {
		if c == confirmer {
			return model.ErrSelfConfirmation
		}
	}

	if err := adjustInTx(ctx, tx, t.TeamA, t.CardA, -t.QtyA); err != nil {
		return err
	}
	if err := adjustInTx(ctx, tx, t.TeamA, t.CardB, t.QtyB); err != nil {
		return err
	}
	if err := adjustInTx(ctx, tx, t.TeamB, t.CardB, -t.QtyB); err != nil {
		return err
	}
	if err := adjustInTx(ctx, tx, t.TeamB, t.CardA, t.QtyA); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// settleFailureReason distinguishes a missing proposal from one that
// already left the pending state
func (s *Storage) settleFailureReason(ctx context.Context, id model.TradeID) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM trade_proposals WHERE id = $1;`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrTradeNotFound
	}
	if err != nil {
		return err
	}
	return model.ErrTradeNotPending
}

func (s *Storage) ExpireTrades(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `
		UPDATE trade_proposals SET status = 'expired'
		WHERE status = 'pending' AND created_at < $1;`
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanTrade(row pgx.Row) (*model.TradeProposal, error) {
	var p model.TradeProposal
	var confirmers string
	err := row.Scan(&p.ID,
		&p.Terms.TeamA, &p.Terms.TeamB,
		&p.Terms.CardA, &p.Terms.QtyA, &p.Terms.CardB, &p.Terms.QtyB,
		&p.Status, &p.Proposer, &confirmers, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTradeNotFound
		}
		return nil, err
	}
	for _, c := range strings.Split(confirmers, ",") {
		if c != "" {
			p.Confirmers = append(p.Confirmers, c)
		}
	}
	return &p, nil
}
