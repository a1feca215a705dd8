package auth

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/tradegame-bot/internal/dependencies/clock"
	"github.com/mcoot/tradegame-bot/internal/dependencies/random"
	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/session"
	"github.com/mcoot/tradegame-bot/internal/storage"
)

const (
	// IDLength is the length of generated team/credential IDs
	IDLength = 10
	// IDAlphabet is the characters used in generated IDs
	IDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Service resolves shared passwords to identities and binds sessions.
// Passwords are verified with bcrypt; resolution scans every stored hash
// and the first match wins.
type Service struct {
	storage  storage.Storage
	sessions session.Store
	clock    clock.Clock
	random   random.Random
	logger   *slog.Logger
}

// New creates a new auth service
func New(storage storage.Storage, sessions session.Store, clk clock.Clock, rnd random.Random, logger *slog.Logger) *Service {
	return &Service{
		storage:  storage,
		sessions: sessions,
		clock:    clk,
		random:   rnd,
		logger:   logger,
	}
}

// Resolve maps a submitted password to an identity, team credentials
// first, role credentials second
func (s *Service) Resolve(ctx context.Context, password string) (model.Identity, error) {
	if team, err := s.resolveTeam(ctx, password); err == nil {
		return model.Identity{Kind: model.IdentityTeam, TeamID: team.ID}, nil
	} else if !errors.Is(err, model.ErrInvalidCredentials) {
		return model.Identity{}, err
	}

	if cred, err := s.resolveRole(ctx, password); err == nil {
		return model.Identity{Kind: model.IdentityRole, Role: cred.Role, Scope: cred.Scope}, nil
	} else if !errors.Is(err, model.ErrInvalidCredentials) {
		return model.Identity{}, err
	}

	return model.Identity{}, model.ErrInvalidCredentials
}

// LoginTeam authenticates a team password and binds the user's session
func (s *Service) LoginTeam(ctx context.Context, userID, password string) (*model.Team, error) {
	team, err := s.resolveTeam(ctx, password)
	if err != nil {
		return nil, err
	}

	s.sessions.Set(userID, model.Session{
		UserID:    userID,
		Identity:  model.Identity{Kind: model.IdentityTeam, TeamID: team.ID},
		CreatedAt: s.clock.Now(),
	})
	s.logger.Info("team login", slog.String("user_id", userID), slog.String("team", team.Name))
	return team, nil
}

// LoginRole authenticates an administrative password and binds the
// user's session
func (s *Service) LoginRole(ctx context.Context, userID, password string) (*model.RoleCredential, error) {
	cred, err := s.resolveRole(ctx, password)
	if err != nil {
		return nil, err
	}

	s.sessions.Set(userID, model.Session{
		UserID:    userID,
		Identity:  model.Identity{Kind: model.IdentityRole, Role: cred.Role, Scope: cred.Scope},
		CreatedAt: s.clock.Now(),
	})
	s.logger.Info("role login", slog.String("user_id", userID), slog.String("role", string(cred.Role)))
	return cred, nil
}

// Logout clears the user's session
func (s *Service) Logout(userID string) {
	s.sessions.Clear(userID)
}

// SessionFor returns the user's live session, if any
func (s *Service) SessionFor(userID string) (model.Session, bool) {
	return s.sessions.Get(userID)
}

// RegisterTeam creates a team with a hashed password. It refuses a
// password that already resolves, so two credentials can never be
// hashing-equal through supported paths.
func (s *Service) RegisterTeam(ctx context.Context, name, password string) (*model.Team, error) {
	if _, err := s.storage.GetTeamByName(ctx, name); err == nil {
		return nil, model.ErrTeamExists
	} else if !errors.Is(err, model.ErrTeamNotFound) {
		return nil, err
	}

	if _, err := s.Resolve(ctx, password); err == nil {
		return nil, model.ErrCredentialExists
	} else if !errors.Is(err, model.ErrInvalidCredentials) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	team := &model.Team{
		ID:           model.TeamID("team_" + s.random.String(IDLength, IDAlphabet)),
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.storage.SaveTeam(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

// RegisterRoleCredential creates a role credential with a hashed password
// and an optional team scope
func (s *Service) RegisterRoleCredential(ctx context.Context, role model.Role, password string, scope model.Scope) (*model.RoleCredential, error) {
	if _, err := s.Resolve(ctx, password); err == nil {
		return nil, model.ErrCredentialExists
	} else if !errors.Is(err, model.ErrInvalidCredentials) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	cred := &model.RoleCredential{
		ID:           model.CredentialID("cred_" + s.random.String(IDLength, IDAlphabet)),
		Role:         role,
		PasswordHash: string(hash),
		Scope:        scope,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.storage.SaveRoleCredential(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// resolveTeam scans all team hashes for a bcrypt match
func (s *Service) resolveTeam(ctx context.Context, password string) (*model.Team, error) {
	teams, err := s.storage.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	for _, team := range teams {
		if bcrypt.CompareHashAndPassword([]byte(team.PasswordHash), []byte(password)) == nil {
			return team, nil
		}
	}
	return nil, model.ErrInvalidCredentials
}

// resolveRole scans all role credential hashes for a bcrypt match
func (s *Service) resolveRole(ctx context.Context, password string) (*model.RoleCredential, error) {
	creds, err := s.storage.ListRoleCredentials(ctx)
	if err != nil {
		return nil, err
	}
	for _, cred := range creds {
		if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) == nil {
			return cred, nil
		}
	}
	return nil, model.ErrInvalidCredentials
}
