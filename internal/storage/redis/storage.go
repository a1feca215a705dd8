package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/storage"
)

// maxTxRetries bounds optimistic-lock retries on contended keys
const maxTxRetries = 5

// Storage is a Redis-backed implementation of the storage interface.
// Inventory lines are stored as integer strings so adjustments and trade
// settlement can run under WATCH as compare-and-set transactions.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Team operations

func (s *Storage) SaveTeam(ctx context.Context, team *model.Team) error {
	data, err := json.Marshal(team)
	if err != nil {
		return err
	}

	// Pipeline for atomic save + index updates
	pipe := s.client.Pipeline()
	pipe.Set(ctx, teamKey(team.ID), data, 0)
	pipe.Set(ctx, teamNameIndexKey(team.Name), string(team.ID), 0)
	pipe.SAdd(ctx, teamsIndexKey(), string(team.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetTeam(ctx context.Context, id model.TeamID) (*model.Team, error) {
	data, err := s.client.Get(ctx, teamKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrTeamNotFound
		}
		return nil, err
	}

	var team model.Team
	if err := json.Unmarshal(data, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

func (s *Storage) GetTeamByName(ctx context.Context, name string) (*model.Team, error) {
	id, err := s.client.Get(ctx, teamNameIndexKey(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrTeamNotFound
		}
		return nil, err
	}
	return s.GetTeam(ctx, model.TeamID(id))
}

func (s *Storage) ListTeams(ctx context.Context) ([]*model.Team, error) {
	ids, err := s.client.SMembers(ctx, teamsIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	teams := make([]*model.Team, 0, len(ids))
	for _, id := range ids {
		team, err := s.GetTeam(ctx, model.TeamID(id))
		if err != nil {
			if errors.Is(err, model.ErrTeamNotFound) {
				continue
			}
			return nil, err
		}
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

// Card catalog operations

func (s *Storage) SaveCard(ctx context.Context, card *model.Card) error {
	data, err := json.Marshal(card)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, cardKey(card.ID), data, 0)
	pipe.SAdd(ctx, cardsIndexKey(), string(card.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetCard(ctx context.Context, id model.CardID) (*model.Card, error) {
	data, err := s.client.Get(ctx, cardKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrCardNotFound
		}
		return nil, err
	}

	var card model.Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (s *Storage) FindCard(ctx context.Context, key string) (*model.Card, error) {
	cards, err := s.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	for _, card := range cards {
		if card.Matches(key) {
			return card, nil
		}
	}
	return nil, model.ErrCardNotFound
}

func (s *Storage) ListCards(ctx context.Context) ([]*model.Card, error) {
	ids, err := s.client.SMembers(ctx, cardsIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	cards := make([]*model.Card, 0, len(ids))
	for _, id := range ids {
		card, err := s.GetCard(ctx, model.CardID(id))
		if err != nil {
			if errors.Is(err, model.ErrCardNotFound) {
				continue
			}
			return nil, err
		}
		cards = append(cards, card)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].Number < cards[j].Number })
	return cards, nil
}

// Role credential operations

func (s *Storage) SaveRoleCredential(ctx context.Context, cred *model.RoleCredential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, credentialKey(cred.ID), data, 0)
	pipe.SAdd(ctx, credentialsIndexKey(), string(cred.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) ListRoleCredentials(ctx context.Context) ([]*model.RoleCredential, error) {
	ids, err := s.client.SMembers(ctx, credentialsIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	creds := make([]*model.RoleCredential, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, credentialKey(model.CredentialID(id))).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var cred model.RoleCredential
		if err := json.Unmarshal(data, &cred); err != nil {
			return nil, err
		}
		creds = append(creds, &cred)
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].ID < creds[j].ID })
	return creds, nil
}

// Inventory operations

func (s *Storage) GetInventoryLine(ctx context.Context, teamID model.TeamID, cardID model.CardID) (*model.InventoryLine, error) {
	qty, err := s.client.Get(ctx, inventoryKey(teamID, cardID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrCardNotFound
		}
		return nil, err
	}
	return &model.InventoryLine{TeamID: teamID, CardID: cardID, Quantity: qty}, nil
}

func (s *Storage) ListInventory(ctx context.Context, teamID model.TeamID) ([]*model.InventoryLine, error) {
	cardIDs, err := s.client.SMembers(ctx, inventoryIndexKey(teamID)).Result()
	if err != nil {
		return nil, err
	}

	var lines []*model.InventoryLine
	for _, id := range cardIDs {
		line, err := s.GetInventoryLine(ctx, teamID, model.CardID(id))
		if err != nil {
			if errors.Is(err, model.ErrCardNotFound) {
				continue // line deleted since the index was read
			}
			return nil, err
		}
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].CardID < lines[j].CardID })
	return lines, nil
}

func (s *Storage) AdjustInventory(ctx context.Context, teamID model.TeamID, cardID model.CardID, delta int) error {
	key := inventoryKey(teamID, cardID)

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		next := current + delta
		if next < 0 {
			return model.ErrInsufficientQuantity
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			writeLine(ctx, pipe, teamID, cardID, next)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

// writeLine queues the write of one inventory line's new quantity,
// keeping the per-team index in sync and deleting zero lines
func writeLine(ctx context.Context, pipe redis.Pipeliner, teamID model.TeamID, cardID model.CardID, qty int) {
	key := inventoryKey(teamID, cardID)
	if qty == 0 {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, inventoryIndexKey(teamID), string(cardID))
		return
	}
	pipe.Set(ctx, key, strconv.Itoa(qty), 0)
	pipe.SAdd(ctx, inventoryIndexKey(teamID), string(cardID))
}

// Mission operations

func (s *Storage) SaveMission(ctx context.Context, mission *model.Mission) error {
	data, err := json.Marshal(mission)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, missionKey(mission.Code), data, 0)
	pipe.SAdd(ctx, missionsIndexKey(), mission.Code)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetMissionByCode(ctx context.Context, code string) (*model.Mission, error) {
	data, err := s.client.Get(ctx, missionKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrMissionNotFound
		}
		return nil, err
	}

	var mission model.Mission
	if err := json.Unmarshal(data, &mission); err != nil {
		return nil, err
	}
	return &mission, nil
}

func (s *Storage) ListMissions(ctx context.Context) ([]*model.Mission, error) {
	codes, err := s.client.SMembers(ctx, missionsIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	missions := make([]*model.Mission, 0, len(codes))
	for _, code := range codes {
		mission, err := s.GetMissionByCode(ctx, code)
		if err != nil {
			if errors.Is(err, model.ErrMissionNotFound) {
				continue
			}
			return nil, err
		}
		missions = append(missions, mission)
	}
	sort.Slice(missions, func(i, j int) bool { return missions[i].Code < missions[j].Code })
	return missions, nil
}

// Announcement operations

func (s *Storage) SaveAnnouncement(ctx context.Context, a *model.Announcement) error {
	if a.ID == 0 {
		id, err := s.client.Incr(ctx, announcementSeqKey()).Result()
		if err != nil {
			return err
		}
		a.ID = model.AnnouncementID(id)
	}

	data, err := json.Marshal(a)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, announcementKey(a.ID), data, 0)
	pipe.SAdd(ctx, announcementsIndexKey(), strconv.FormatInt(int64(a.ID), 10))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) DeleteAnnouncement(ctx context.Context, id model.AnnouncementID) error {
	deleted, err := s.client.Del(ctx, announcementKey(id)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return model.ErrAnnouncementNotFound
	}
	return s.client.SRem(ctx, announcementsIndexKey(), strconv.FormatInt(int64(id), 10)).Err()
}

func (s *Storage) ListUnsentAnnouncements(ctx context.Context) ([]*model.Announcement, error) {
	ids, err := s.client.SMembers(ctx, announcementsIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	var pending []*model.Announcement
	for _, idStr := range ids {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		data, err := s.client.Get(ctx, announcementKey(model.AnnouncementID(id))).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var a model.Announcement
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		if !a.Sent {
			pending = append(pending, &a)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ScheduledAt.Before(pending[j].ScheduledAt)
	})
	return pending, nil
}

// Trade proposal operations

func (s *Storage) SaveTradeProposal(ctx context.Context, p *model.TradeProposal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	idStr := string(p.ID)
	pipe := s.client.Pipeline()
	if p.Status == model.TradeStatusPending {
		pipe.Set(ctx, tradeKey(p.ID), data, 0)
		pipe.SAdd(ctx, pendingTradesIndexKey(), idStr)
	} else {
		pipe.Set(ctx, tradeKey(p.ID), data, s.cfg.SettledTradeTTL)
		pipe.SRem(ctx, pendingTradesIndexKey(), idStr)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetTradeProposal(ctx context.Context, id model.TradeID) (*model.TradeProposal, error) {
	data, err := s.client.Get(ctx, tradeKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrTradeNotFound
		}
		return nil, err
	}

	var p model.TradeProposal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) FindPendingTrade(ctx context.Context, terms model.TradeTerms, cutoff time.Time) (*model.TradeProposal, error) {
	ids, err := s.client.SMembers(ctx, pendingTradesIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	var found *model.TradeProposal
	for _, id := range ids {
		p, err := s.GetTradeProposal(ctx, model.TradeID(id))
		if err != nil {
			if errors.Is(err, model.ErrTradeNotFound) {
				continue
			}
			return nil, err
		}
		if p.Status != model.TradeStatusPending || p.Terms != terms {
			continue
		}
		if p.CreatedAt.Before(cutoff) {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, model.ErrTradeNotFound
	}
	return found, nil
}

func (s *Storage) SettleTrade(ctx context.Context, id model.TradeID, confirmer string) error {
	tKey := tradeKey(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, tKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrTradeNotFound
			}
			return err
		}

		var p model.TradeProposal
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.Status != model.TradeStatusPending {
			return model.ErrTradeNotPending
		}
		if p.HasConfirmer(confirmer) {
			return model.ErrSelfConfirmation
		}

		t := p.Terms
		aHeld, err := readQty(ctx, tx, t.TeamA, t.CardA)
		if err != nil {
			return err
		}
		bHeld, err := readQty(ctx, tx, t.TeamB, t.CardB)
		if err != nil {
			return err
		}
		aCredit, err := readQty(ctx, tx, t.TeamA, t.CardB)
		if err != nil {
			return err
		}
		bCredit, err := readQty(ctx, tx, t.TeamB, t.CardA)
		if err != nil {
			return err
		}

		if aHeld < t.QtyA || bHeld < t.QtyB {
			return model.ErrInsufficientQuantity
		}

		p.Status = model.TradeStatusCompleted
		p.Confirmers = append(p.Confirmers, confirmer)
		updated, err := json.Marshal(&p)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if t.CardA == t.CardB {
				// Same card both ways: qtyA == qtyB, quantities net out
				writeLine(ctx, pipe, t.TeamA, t.CardA, aHeld-t.QtyA+t.QtyB)
				writeLine(ctx, pipe, t.TeamB, t.CardB, bHeld-t.QtyB+t.QtyA)
			} else {
				writeLine(ctx, pipe, t.TeamA, t.CardA, aHeld-t.QtyA)
				writeLine(ctx, pipe, t.TeamA, t.CardB, aCredit+t.QtyB)
				writeLine(ctx, pipe, t.TeamB, t.CardB, bHeld-t.QtyB)
				writeLine(ctx, pipe, t.TeamB, t.CardA, bCredit+t.QtyA)
			}
			pipe.Set(ctx, tKey, updated, s.cfg.SettledTradeTTL)
			pipe.SRem(ctx, pendingTradesIndexKey(), string(id))
			return nil
		})
		return err
	}

	watchKeys := func(t model.TradeTerms) []string {
		return []string{
			tKey,
			inventoryKey(t.TeamA, t.CardA),
			inventoryKey(t.TeamA, t.CardB),
			inventoryKey(t.TeamB, t.CardB),
			inventoryKey(t.TeamB, t.CardA),
		}
	}

	// The proposal's terms are immutable once created, so reading them
	// outside the transaction only to derive WATCH keys is safe.
	p, err := s.GetTradeProposal(ctx, id)
	if err != nil {
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txn, watchKeys(p.Terms)...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

// readQty reads a line quantity within a WATCH transaction, treating a
// missing line as zero
func readQty(ctx context.Context, tx *redis.Tx, teamID model.TeamID, cardID model.CardID) (int, error) {
	qty, err := tx.Get(ctx, inventoryKey(teamID, cardID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

func (s *Storage) ExpireTrades(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.SMembers(ctx, pendingTradesIndexKey()).Result()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		tKey := tradeKey(model.TradeID(id))

		txn := func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, tKey).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return model.ErrTradeNotFound
				}
				return err
			}

			var p model.TradeProposal
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			if p.Status != model.TradeStatusPending || !p.CreatedAt.Before(cutoff) {
				return model.ErrTradeNotPending
			}

			p.Status = model.TradeStatusExpired
			updated, err := json.Marshal(&p)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, tKey, updated, s.cfg.SettledTradeTTL)
				pipe.SRem(ctx, pendingTradesIndexKey(), id)
				return nil
			})
			return err
		}

		err := s.client.Watch(ctx, txn, tKey)
		switch {
		case err == nil:
			count++
		case errors.Is(err, model.ErrTradeNotPending),
			errors.Is(err, model.ErrTradeNotFound),
			errors.Is(err, redis.TxFailedErr):
			// Lost the race to a concurrent confirmation; skip
		default:
			return count, err
		}
	}
	return count, nil
}
