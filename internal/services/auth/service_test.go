package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tradegame-bot/internal/dependencies/mocks"
	"github.com/mcoot/tradegame-bot/internal/dependencies/random"
	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/session"
	"github.com/mcoot/tradegame-bot/internal/storage/memory"
	"github.com/mcoot/tradegame-bot/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage  *memory.Storage
	sessions *session.MemoryStore
	service  *Service
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.sessions = session.NewMemoryStore()
	clk := mocks.NewMockClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	s.service = New(s.storage, s.sessions, clk, random.New(), testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ServiceSuite) TestRegisterAndLoginTeam() {
	team, err := s.service.RegisterTeam(s.ctx, "小隊1", "tiger42")
	s.Require().NoError(err)
	s.NotEmpty(team.ID)
	s.NotEqual("tiger42", team.PasswordHash)

	loggedIn, err := s.service.LoginTeam(s.ctx, "user-1", "tiger42")
	s.Require().NoError(err)
	s.Equal(team.ID, loggedIn.ID)

	sess, ok := s.service.SessionFor("user-1")
	s.Require().True(ok)
	s.True(sess.Identity.IsTeam())
	s.Equal(team.ID, sess.Identity.TeamID)
}

func (s *ServiceSuite) TestLoginTeamWrongPassword() {
	_, err := s.service.RegisterTeam(s.ctx, "小隊1", "tiger42")
	s.Require().NoError(err)

	_, err = s.service.LoginTeam(s.ctx, "user-1", "wrong")
	s.ErrorIs(err, model.ErrInvalidCredentials)

	_, ok := s.service.SessionFor("user-1")
	s.False(ok)
}

func (s *ServiceSuite) TestRegisterTeamDuplicateName() {
	_, err := s.service.RegisterTeam(s.ctx, "小隊1", "tiger42")
	s.Require().NoError(err)

	_, err = s.service.RegisterTeam(s.ctx, "小隊1", "other")
	s.ErrorIs(err, model.ErrTeamExists)
}

func (s *ServiceSuite) TestRegisterRefusesResolvingPassword() {
	_, err := s.service.RegisterTeam(s.ctx, "小隊1", "tiger42")
	s.Require().NoError(err)

	// The same password for another team would make logins ambiguous
	_, err = s.service.RegisterTeam(s.ctx, "小隊2", "tiger42")
	s.ErrorIs(err, model.ErrCredentialExists)

	// Or for a role credential
	_, err = s.service.RegisterRoleCredential(s.ctx, model.RoleGameMaster, "tiger42", nil)
	s.ErrorIs(err, model.ErrCredentialExists)
}

func (s *ServiceSuite) TestLoginRole() {
	cred, err := s.service.RegisterRoleCredential(s.ctx, model.RoleGameMaster, "gm-secret", model.NewScope("team_a"))
	s.Require().NoError(err)

	loggedIn, err := s.service.LoginRole(s.ctx, "user-1", "gm-secret")
	s.Require().NoError(err)
	s.Equal(cred.ID, loggedIn.ID)

	sess, ok := s.service.SessionFor("user-1")
	s.Require().True(ok)
	s.True(sess.Identity.IsAdmin())
	s.Equal(model.RoleGameMaster, sess.Identity.Role)
	s.True(sess.Identity.CanActOn("team_a"))
	s.False(sess.Identity.CanActOn("team_b"))
}

func (s *ServiceSuite) TestResolvePrefersTeams() {
	team, err := s.service.RegisterTeam(s.ctx, "小隊1", "tiger42")
	s.Require().NoError(err)

	identity, err := s.service.Resolve(s.ctx, "tiger42")
	s.Require().NoError(err)
	s.True(identity.IsTeam())
	s.Equal(team.ID, identity.TeamID)
}

func (s *ServiceSuite) TestResolveUnknownPassword() {
	_, err := s.service.Resolve(s.ctx, "nothing")
	s.ErrorIs(err, model.ErrInvalidCredentials)
}

func (s *ServiceSuite) TestRelogin() {
	_, err := s.service.RegisterTeam(s.ctx, "小隊1", "tiger42")
	s.Require().NoError(err)
	_, err = s.service.RegisterRoleCredential(s.ctx, model.RoleOrganizer, "org-secret", nil)
	s.Require().NoError(err)

	_, err = s.service.LoginTeam(s.ctx, "user-1", "tiger42")
	s.Require().NoError(err)

	// Logging out and back in as an organizer replaces the binding
	s.service.Logout("user-1")
	_, err = s.service.LoginRole(s.ctx, "user-1", "org-secret")
	s.Require().NoError(err)

	sess, ok := s.service.SessionFor("user-1")
	s.Require().True(ok)
	s.Equal(model.RoleOrganizer, sess.Identity.Role)
}

func (s *ServiceSuite) TestGeneratedIDsComeFromRandom() {
	rnd := mocks.NewMockRandom()
	rnd.QueueString("aaaaaaaaaa", "bbbbbbbbbb")
	clk := mocks.NewMockClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	service := New(s.storage, s.sessions, clk, rnd, testutil.NopLogger())

	team, err := service.RegisterTeam(s.ctx, "小隊1", "tiger42")
	s.Require().NoError(err)
	s.Equal(model.TeamID("team_aaaaaaaaaa"), team.ID)

	cred, err := service.RegisterRoleCredential(s.ctx, model.RoleOrganizer, "org-secret", nil)
	s.Require().NoError(err)
	s.Equal(model.CredentialID("cred_bbbbbbbbbb"), cred.ID)
}

func (s *ServiceSuite) TestLogoutIsIdempotent() {
	s.service.Logout("never-logged-in")
	_, ok := s.service.SessionFor("never-logged-in")
	s.False(ok)
}
