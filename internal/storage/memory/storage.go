package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// The single mutex is what makes AdjustInventory and SettleTrade
// all-or-nothing.
type Storage struct {
	mu sync.RWMutex

	teams         map[model.TeamID]*model.Team
	teamNameIndex map[string]model.TeamID
	cards         map[model.CardID]*model.Card
	credentials   map[model.CredentialID]*model.RoleCredential
	inventory     map[lineKey]*model.InventoryLine
	missions      map[string]*model.Mission
	announcements map[model.AnnouncementID]*model.Announcement
	trades        map[model.TradeID]*model.TradeProposal

	nextAnnouncementID model.AnnouncementID
}

type lineKey struct {
	teamID model.TeamID
	cardID model.CardID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		teams:         make(map[model.TeamID]*model.Team),
		teamNameIndex: make(map[string]model.TeamID),
		cards:         make(map[model.CardID]*model.Card),
		credentials:   make(map[model.CredentialID]*model.RoleCredential),
		inventory:     make(map[lineKey]*model.InventoryLine),
		missions:      make(map[string]*model.Mission),
		announcements: make(map[model.AnnouncementID]*model.Announcement),
		trades:        make(map[model.TradeID]*model.TradeProposal),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Team operations

func (s *Storage) SaveTeam(ctx context.Context, team *model.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[team.ID] = team
	s.teamNameIndex[team.Name] = team.ID
	return nil
}

func (s *Storage) GetTeam(ctx context.Context, id model.TeamID) (*model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[id]
	if !ok {
		return nil, model.ErrTeamNotFound
	}
	return team, nil
}

func (s *Storage) GetTeamByName(ctx context.Context, name string) (*model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.teamNameIndex[name]
	if !ok {
		return nil, model.ErrTeamNotFound
	}
	team, ok := s.teams[id]
	if !ok {
		return nil, model.ErrTeamNotFound
	}
	return team, nil
}

func (s *Storage) ListTeams(ctx context.Context) ([]*model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := make([]*model.Team, 0, len(s.teams))
	for _, team := range s.teams {
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

// Card catalog operations

func (s *Storage) SaveCard(ctx context.Context, card *model.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.ID] = card
	return nil
}

func (s *Storage) GetCard(ctx context.Context, id model.CardID) (*model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[id]
	if !ok {
		return nil, model.ErrCardNotFound
	}
	return card, nil
}

func (s *Storage) FindCard(ctx context.Context, key string) (*model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, card := range s.cards {
		if card.Matches(key) {
			return card, nil
		}
	}
	return nil, model.ErrCardNotFound
}

func (s *Storage) ListCards(ctx context.Context) ([]*model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cards := make([]*model.Card, 0, len(s.cards))
	for _, card := range s.cards {
		cards = append(cards, card)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].Number < cards[j].Number })
	return cards, nil
}

// Role credential operations

func (s *Storage) SaveRoleCredential(ctx context.Context, cred *model.RoleCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cred.ID] = cred
	return nil
}

func (s *Storage) ListRoleCredentials(ctx context.Context) ([]*model.RoleCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds := make([]*model.RoleCredential, 0, len(s.credentials))
	for _, cred := range s.credentials {
		creds = append(creds, cred)
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].ID < creds[j].ID })
	return creds, nil
}

// Inventory operations

func (s *Storage) GetInventoryLine(ctx context.Context, teamID model.TeamID, cardID model.CardID) (*model.InventoryLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	line, ok := s.inventory[lineKey{teamID: teamID, cardID: cardID}]
	if !ok {
		return nil, model.ErrCardNotFound
	}
	return line, nil
}

func (s *Storage) ListInventory(ctx context.Context, teamID model.TeamID) ([]*model.InventoryLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var lines []*model.InventoryLine
	for key, line := range s.inventory {
		if key.teamID == teamID {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].CardID < lines[j].CardID })
	return lines, nil
}

func (s *Storage) AdjustInventory(ctx context.Context, teamID model.TeamID, cardID model.CardID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustLocked(teamID, cardID, delta)
}

// adjustLocked applies a delta to one line. Callers hold the write lock.
func (s *Storage) adjustLocked(teamID model.TeamID, cardID model.CardID, delta int) error {
	key := lineKey{teamID: teamID, cardID: cardID}
	line, ok := s.inventory[key]
	current := 0
	if ok {
		current = line.Quantity
	}
	next := current + delta
	if next < 0 {
		return model.ErrInsufficientQuantity
	}
	if next == 0 {
		delete(s.inventory, key)
		return nil
	}
	if ok {
		line.Quantity = next
	} else {
		s.inventory[key] = &model.InventoryLine{TeamID: teamID, CardID: cardID, Quantity: next}
	}
	return nil
}

// quantityLocked reads a line's quantity. Callers hold the lock.
func (s *Storage) quantityLocked(teamID model.TeamID, cardID model.CardID) int {
	if line, ok := s.inventory[lineKey{teamID: teamID, cardID: cardID}]; ok {
		return line.Quantity
	}
	return 0
}

// Mission operations

func (s *Storage) SaveMission(ctx context.Context, mission *model.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[mission.Code] = mission
	return nil
}

func (s *Storage) GetMissionByCode(ctx context.Context, code string) (*model.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mission, ok := s.missions[code]
	if !ok {
		return nil, model.ErrMissionNotFound
	}
	return mission, nil
}

func (s *Storage) ListMissions(ctx context.Context) ([]*model.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	missions := make([]*model.Mission, 0, len(s.missions))
	for _, mission := range s.missions {
		missions = append(missions, mission)
	}
	sort.Slice(missions, func(i, j int) bool { return missions[i].Code < missions[j].Code })
	return missions, nil
}

// Announcement operations

func (s *Storage) SaveAnnouncement(ctx context.Context, a *model.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.nextAnnouncementID++
		a.ID = s.nextAnnouncementID
	}
	s.announcements[a.ID] = a
	return nil
}

func (s *Storage) DeleteAnnouncement(ctx context.Context, id model.AnnouncementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.announcements[id]; !ok {
		return model.ErrAnnouncementNotFound
	}
	delete(s.announcements, id)
	return nil
}

func (s *Storage) ListUnsentAnnouncements(ctx context.Context) ([]*model.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []*model.Announcement
	for _, a := range s.announcements {
		if !a.Sent {
			pending = append(pending, a)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ScheduledAt.Before(pending[j].ScheduledAt)
	})
	return pending, nil
}

// Trade proposal operations

func (s *Storage) SaveTradeProposal(ctx context.Context, p *model.TradeProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[p.ID] = p
	return nil
}

func (s *Storage) GetTradeProposal(ctx context.Context, id model.TradeID) (*model.TradeProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.trades[id]
	if !ok {
		return nil, model.ErrTradeNotFound
	}
	return p, nil
}

func (s *Storage) FindPendingTrade(ctx context.Context, terms model.TradeTerms, cutoff time.Time) (*model.TradeProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *model.TradeProposal
	for _, p := range s.trades {
		if p.Status != model.TradeStatusPending || p.Terms != terms {
			continue
		}
		if p.CreatedAt.Before(cutoff) {
			continue
		}
		// Prefer the oldest eligible proposal
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
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.trades[id]
	if !ok {
		return model.ErrTradeNotFound
	}
	if p.Status != model.TradeStatusPending {
		return model.ErrTradeNotPending
	}
	if p.HasConfirmer(confirmer) {
		return model.ErrSelfConfirmation
	}

	t := p.Terms
	// Verify both debits before mutating anything
	if s.quantityLocked(t.TeamA, t.CardA) < t.QtyA {
		return model.ErrInsufficientQuantity
	}
	if s.quantityLocked(t.TeamB, t.CardB) < t.QtyB {
		return model.ErrInsufficientQuantity
	}

	_ = s.adjustLocked(t.TeamA, t.CardA, -t.QtyA)
	_ = s.adjustLocked(t.TeamA, t.CardB, t.QtyB)
	_ = s.adjustLocked(t.TeamB, t.CardB, -t.QtyB)
	_ = s.adjustLocked(t.TeamB, t.CardA, t.QtyA)

	p.Status = model.TradeStatusCompleted
	p.Confirmers = append(p.Confirmers, confirmer)
	return nil
}

func (s *Storage) ExpireTrades(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.trades {
		if p.Status == model.TradeStatusPending && p.CreatedAt.Before(cutoff) {
			p.Status = model.TradeStatusExpired
			count++
		}
	}
	return count, nil
}
