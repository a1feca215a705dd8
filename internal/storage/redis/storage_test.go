package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tradegame-bot/internal/model"
)

type StorageSuite struct {
	suite.Suite
	mini    *miniredis.Miniredis
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())

	client := redis.NewClient(&redis.Options{
		Addr: s.mini.Addr(),
	})

	cfg := DefaultConfig()
	cfg.SettledTradeTTL = time.Hour

	s.storage = NewWithClient(client, cfg)
	s.ctx = context.Background()
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

// Team tests

func (s *StorageSuite) TestSaveAndGetTeam() {
	team := &model.Team{
		ID:           "team_alpha",
		Name:         "小隊1",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    time.Now().UTC(),
	}

	err := s.storage.SaveTeam(s.ctx, team)
	s.Require().NoError(err)

	retrieved, err := s.storage.GetTeam(s.ctx, "team_alpha")
	s.Require().NoError(err)
	s.Equal(team.Name, retrieved.Name)
	s.Equal(team.PasswordHash, retrieved.PasswordHash)

	byName, err := s.storage.GetTeamByName(s.ctx, "小隊1")
	s.Require().NoError(err)
	s.Equal(team.ID, byName.ID)
}

func (s *StorageSuite) TestGetTeamNotFound() {
	_, err := s.storage.GetTeam(s.ctx, "nonexistent")
	s.ErrorIs(err, model.ErrTeamNotFound)
}

func (s *StorageSuite) TestListTeams() {
	_ = s.storage.SaveTeam(s.ctx, &model.Team{ID: "team_b", Name: "beta"})
	_ = s.storage.SaveTeam(s.ctx, &model.Team{ID: "team_a", Name: "alpha"})

	teams, err := s.storage.ListTeams(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(teams, 2)
	s.Equal("alpha", teams[0].Name)
}

// Card tests

func (s *StorageSuite) TestFindCardByNumberAndNames() {
	card := &model.Card{ID: "card_16", Number: "16", NameZH: "紅寶石", NameEN: "Ruby"}
	s.Require().NoError(s.storage.SaveCard(s.ctx, card))

	for _, key := range []string{"16", "紅寶石", "Ruby"} {
		found, err := s.storage.FindCard(s.ctx, key)
		s.Require().NoError(err, "key %q", key)
		s.Equal(card.ID, found.ID)
	}

	_, err := s.storage.FindCard(s.ctx, "unknown")
	s.ErrorIs(err, model.ErrCardNotFound)
}

// Role credential tests

func (s *StorageSuite) TestSaveAndListRoleCredentials() {
	cred := &model.RoleCredential{
		ID:           "cred_1",
		Role:         model.RoleGameMaster,
		PasswordHash: "$2a$10$hash",
		Scope:        model.NewScope("team_a"),
	}
	s.Require().NoError(s.storage.SaveRoleCredential(s.ctx, cred))

	creds, err := s.storage.ListRoleCredentials(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(creds, 1)
	s.Equal(model.RoleGameMaster, creds[0].Role)
	s.True(creds[0].Scope.Contains("team_a"))
	s.False(creds[0].Scope.Contains("team_b"))
}

// Inventory tests

func (s *StorageSuite) TestAdjustInventory() {
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 3))

	line, err := s.storage.GetInventoryLine(s.ctx, "team_a", "card_1")
	s.Require().NoError(err)
	s.Equal(3, line.Quantity)

	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 2))
	line, err = s.storage.GetInventoryLine(s.ctx, "team_a", "card_1")
	s.Require().NoError(err)
	s.Equal(5, line.Quantity)
}

func (s *StorageSuite) TestAdjustInventoryInsufficient() {
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 2))

	err := s.storage.AdjustInventory(s.ctx, "team_a", "card_1", -3)
	s.ErrorIs(err, model.ErrInsufficientQuantity)

	line, err := s.storage.GetInventoryLine(s.ctx, "team_a", "card_1")
	s.Require().NoError(err)
	s.Equal(2, line.Quantity)
}

func (s *StorageSuite) TestAdjustInventoryDeletesAtZero() {
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 2))
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", -2))

	_, err := s.storage.GetInventoryLine(s.ctx, "team_a", "card_1")
	s.ErrorIs(err, model.ErrCardNotFound)

	lines, err := s.storage.ListInventory(s.ctx, "team_a")
	s.Require().NoError(err)
	s.Empty(lines)
}

func (s *StorageSuite) TestListInventorySorted() {
	_ = s.storage.AdjustInventory(s.ctx, "team_a", "card_2", 1)
	_ = s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 4)

	lines, err := s.storage.ListInventory(s.ctx, "team_a")
	s.Require().NoError(err)
	s.Require().Len(lines, 2)
	s.Equal(model.CardID("card_1"), lines[0].CardID)
	s.Equal(4, lines[0].Quantity)
}

// Mission tests

func (s *StorageSuite) TestSaveAndGetMission() {
	now := time.Now().UTC()
	mission := &model.Mission{
		Code:        "M001",
		Name:        "尋寶",
		Completed:   true,
		CompletedAt: &now,
		CompletedBy: "小隊1",
	}
	s.Require().NoError(s.storage.SaveMission(s.ctx, mission))

	retrieved, err := s.storage.GetMissionByCode(s.ctx, "M001")
	s.Require().NoError(err)
	s.True(retrieved.Completed)
	s.Equal("小隊1", retrieved.CompletedBy)
	s.Require().NotNil(retrieved.CompletedAt)
	s.WithinDuration(now, *retrieved.CompletedAt, time.Second)
}

// Announcement tests

func (s *StorageSuite) TestAnnouncementSequence() {
	a1 := &model.Announcement{Message: "first", ScheduledAt: time.Now().UTC()}
	a2 := &model.Announcement{Message: "second", ScheduledAt: time.Now().UTC()}

	s.Require().NoError(s.storage.SaveAnnouncement(s.ctx, a1))
	s.Require().NoError(s.storage.SaveAnnouncement(s.ctx, a2))
	s.Equal(model.AnnouncementID(1), a1.ID)
	s.Equal(model.AnnouncementID(2), a2.ID)

	pending, err := s.storage.ListUnsentAnnouncements(s.ctx)
	s.Require().NoError(err)
	s.Len(pending, 2)

	s.Require().NoError(s.storage.DeleteAnnouncement(s.ctx, a1.ID))
	s.ErrorIs(s.storage.DeleteAnnouncement(s.ctx, a1.ID), model.ErrAnnouncementNotFound)
}

func (s *StorageSuite) TestSentAnnouncementsNotListed() {
	a := &model.Announcement{Message: "done", ScheduledAt: time.Now().UTC()}
	s.Require().NoError(s.storage.SaveAnnouncement(s.ctx, a))

	a.Sent = true
	s.Require().NoError(s.storage.SaveAnnouncement(s.ctx, a))

	pending, err := s.storage.ListUnsentAnnouncements(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)
}

// Trade tests

func (s *StorageSuite) seedTrade(created time.Time) (*model.TradeProposal, model.TradeTerms) {
	terms := model.TradeTerms{
		TeamA: "team_a", TeamB: "team_b",
		CardA: "card_1", QtyA: 2,
		CardB: "card_2", QtyB: 1,
	}
	p := &model.TradeProposal{
		ID:         "trade_abc123",
		Terms:      terms,
		Status:     model.TradeStatusPending,
		Proposer:   "user-1",
		Confirmers: []string{"user-1"},
		CreatedAt:  created,
	}
	s.Require().NoError(s.storage.SaveTradeProposal(s.ctx, p))
	return p, terms
}

func (s *StorageSuite) TestFindPendingTrade() {
	now := time.Now().UTC()
	_, terms := s.seedTrade(now)

	found, err := s.storage.FindPendingTrade(s.ctx, terms, now.Add(-time.Minute))
	s.Require().NoError(err)
	s.Equal(model.TradeID("trade_abc123"), found.ID)

	// Outside the cutoff
	_, err = s.storage.FindPendingTrade(s.ctx, terms, now.Add(time.Minute))
	s.ErrorIs(err, model.ErrTradeNotFound)
}

func (s *StorageSuite) TestSettleTradeSwapsInventory() {
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 5))
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_b", "card_2", 5))
	p, _ := s.seedTrade(time.Now().UTC())

	s.Require().NoError(s.storage.SettleTrade(s.ctx, p.ID, "user-2"))

	settled, err := s.storage.GetTradeProposal(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(model.TradeStatusCompleted, settled.Status)
	s.Equal([]string{"user-1", "user-2"}, settled.Confirmers)

	lineA1, err := s.storage.GetInventoryLine(s.ctx, "team_a", "card_1")
	s.Require().NoError(err)
	s.Equal(3, lineA1.Quantity)
	lineA2, err := s.storage.GetInventoryLine(s.ctx, "team_a", "card_2")
	s.Require().NoError(err)
	s.Equal(1, lineA2.Quantity)
	lineB2, err := s.storage.GetInventoryLine(s.ctx, "team_b", "card_2")
	s.Require().NoError(err)
	s.Equal(4, lineB2.Quantity)
	lineB1, err := s.storage.GetInventoryLine(s.ctx, "team_b", "card_1")
	s.Require().NoError(err)
	s.Equal(2, lineB1.Quantity)
}

func (s *StorageSuite) TestSettleTradeOnlyOnce() {
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 5))
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_b", "card_2", 5))
	p, _ := s.seedTrade(time.Now().UTC())

	s.Require().NoError(s.storage.SettleTrade(s.ctx, p.ID, "user-2"))
	s.ErrorIs(s.storage.SettleTrade(s.ctx, p.ID, "user-3"), model.ErrTradeNotPending)

	lineA1, err := s.storage.GetInventoryLine(s.ctx, "team_a", "card_1")
	s.Require().NoError(err)
	s.Equal(3, lineA1.Quantity)
}

func (s *StorageSuite) TestSettleTradeSelfConfirmation() {
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 5))
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_b", "card_2", 5))
	p, _ := s.seedTrade(time.Now().UTC())

	s.ErrorIs(s.storage.SettleTrade(s.ctx, p.ID, "user-1"), model.ErrSelfConfirmation)

	pending, err := s.storage.GetTradeProposal(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(model.TradeStatusPending, pending.Status)
}

func (s *StorageSuite) TestSettleTradeInsufficientLeavesStateIntact() {
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 5))
	// team_b holds nothing
	p, _ := s.seedTrade(time.Now().UTC())

	s.ErrorIs(s.storage.SettleTrade(s.ctx, p.ID, "user-2"), model.ErrInsufficientQuantity)

	pending, err := s.storage.GetTradeProposal(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(model.TradeStatusPending, pending.Status)
	lineA1, err := s.storage.GetInventoryLine(s.ctx, "team_a", "card_1")
	s.Require().NoError(err)
	s.Equal(5, lineA1.Quantity)
}

func (s *StorageSuite) TestSettleSameCardTradeNetsOut() {
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 3))
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_b", "card_1", 3))

	p := &model.TradeProposal{
		ID: "trade_same",
		Terms: model.TradeTerms{
			TeamA: "team_a", TeamB: "team_b",
			CardA: "card_1", QtyA: 2,
			CardB: "card_1", QtyB: 2,
		},
		Status:     model.TradeStatusPending,
		Proposer:   "user-1",
		Confirmers: []string{"user-1"},
		CreatedAt:  time.Now().UTC(),
	}
	s.Require().NoError(s.storage.SaveTradeProposal(s.ctx, p))
	s.Require().NoError(s.storage.SettleTrade(s.ctx, p.ID, "user-2"))

	lineA, err := s.storage.GetInventoryLine(s.ctx, "team_a", "card_1")
	s.Require().NoError(err)
	s.Equal(3, lineA.Quantity)
	lineB, err := s.storage.GetInventoryLine(s.ctx, "team_b", "card_1")
	s.Require().NoError(err)
	s.Equal(3, lineB.Quantity)
}

func (s *StorageSuite) TestExpireTrades() {
	now := time.Now().UTC()
	p, _ := s.seedTrade(now.Add(-2 * time.Minute))

	count, err := s.storage.ExpireTrades(s.ctx, now.Add(-time.Minute))
	s.Require().NoError(err)
	s.Equal(1, count)

	expired, err := s.storage.GetTradeProposal(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(model.TradeStatusExpired, expired.Status)

	count, err = s.storage.ExpireTrades(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(0, count)
}

func (s *StorageSuite) TestSettledTradeGetsTTL() {
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_a", "card_1", 5))
	s.Require().NoError(s.storage.AdjustInventory(s.ctx, "team_b", "card_2", 5))
	p, _ := s.seedTrade(time.Now().UTC())

	s.Require().NoError(s.storage.SettleTrade(s.ctx, p.ID, "user-2"))

	ttl := s.mini.TTL(tradeKey(p.ID))
	s.Equal(time.Hour, ttl)
}
