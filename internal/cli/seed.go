package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/tradegame-bot/internal/config"
	"github.com/mcoot/tradegame-bot/internal/dependencies/clock"
	"github.com/mcoot/tradegame-bot/internal/dependencies/random"
	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/services/auth"
	"github.com/mcoot/tradegame-bot/internal/session"
	"github.com/mcoot/tradegame-bot/internal/storage"
	"github.com/mcoot/tradegame-bot/internal/storage/memory"
	postgresstorage "github.com/mcoot/tradegame-bot/internal/storage/postgres"
	redisstorage "github.com/mcoot/tradegame-bot/internal/storage/redis"
)

func newSeedCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load credentials and the card catalog into storage",
		Long: `seed reads the password and card files and registers them:

  team_passwords.txt       one team per line: "name password" (or just a
                           password; the team is then named 隊伍-N)
  gm_passwords.txt         one game master per line: "password[,team,...]"
                           with optional team names limiting its scope
  organizer_passwords.txt  one organizer password per line
  cards.txt                one card per line: "number,zh-name[,en-name]"

Passwords are hashed before storing. Entries whose password already
resolves to an existing login are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(dir)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "passwords", "Directory containing the seed files")
	return cmd
}

func runSeed(dir string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.LoadStorage()
	if err != nil {
		logger.Error("configuration error", slog.String("error", err.Error()))
		return err
	}

	ctx := context.Background()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", slog.String("error", err.Error()))
		return err
	}

	authService := auth.New(store, session.NewMemoryStore(), clock.New(), random.New(), logger)

	if err := seedTeams(ctx, authService, logger, filepath.Join(dir, "team_passwords.txt")); err != nil {
		return err
	}
	if err := seedRoles(ctx, store, authService, logger, filepath.Join(dir, "gm_passwords.txt"), model.RoleGameMaster); err != nil {
		return err
	}
	if err := seedRoles(ctx, store, authService, logger, filepath.Join(dir, "organizer_passwords.txt"), model.RoleOrganizer); err != nil {
		return err
	}
	if err := seedCards(ctx, store, logger, filepath.Join(dir, "cards.txt")); err != nil {
		return err
	}

	logger.Info("seeding complete")
	return nil
}

func openStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StorageRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		return redisstorage.New(redisCfg)
	case config.StoragePostgres:
		return postgresstorage.New(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.StorageType)
	}
}

func seedTeams(ctx context.Context, authService *auth.Service, logger *slog.Logger, path string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}

	for idx, line := range lines {
		name := fmt.Sprintf("隊伍-%d", idx+1)
		password := line
		if fields := strings.Fields(line); len(fields) >= 2 {
			name = fields[0]
			password = fields[1]
		}

		team, err := authService.RegisterTeam(ctx, name, password)
		if err != nil {
			if errors.Is(err, model.ErrCredentialExists) || errors.Is(err, model.ErrTeamExists) {
				logger.Info("team already seeded", slog.String("name", name))
				continue
			}
			return err
		}
		logger.Info("team registered",
			slog.String("id", string(team.ID)),
			slog.String("name", team.Name),
		)
	}
	return nil
}

func seedRoles(ctx context.Context, store storage.Storage, authService *auth.Service, logger *slog.Logger, path string, role model.Role) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}

	for _, line := range lines {
		parts := strings.Split(line, ",")
		password := strings.TrimSpace(parts[0])

		var scope model.Scope
		for _, token := range parts[1:] {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			teamID := model.TeamID(token)
			// Tokens may be team names; prefer a name match when one exists
			if team, err := store.GetTeamByName(ctx, token); err == nil {
				teamID = team.ID
			}
			if scope == nil {
				scope = model.Scope{}
			}
			scope[teamID] = struct{}{}
		}

		cred, err := authService.RegisterRoleCredential(ctx, role, password, scope)
		if err != nil {
			if errors.Is(err, model.ErrCredentialExists) {
				logger.Info("credential already seeded", slog.String("role", string(role)))
				continue
			}
			return err
		}
		logger.Info("credential registered",
			slog.String("id", string(cred.ID)),
			slog.String("role", string(role)),
		)
	}
	return nil
}

func seedCards(ctx context.Context, store storage.Storage, logger *slog.Logger, path string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}

	for _, line := range lines {
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			logger.Warn("skipping malformed card line", slog.String("line", line))
			continue
		}
		number := strings.TrimSpace(parts[0])
		nameZH := strings.TrimSpace(parts[1])
		nameEN := ""
		if len(parts) >= 3 {
			nameEN = strings.TrimSpace(parts[2])
		}

		if _, err := store.FindCard(ctx, number); err == nil {
			logger.Info("card already seeded", slog.String("number", number))
			continue
		} else if !errors.Is(err, model.ErrCardNotFound) {
			return err
		}

		card := &model.Card{
			ID:     model.CardID("card_" + number),
			Number: number,
			NameZH: nameZH,
			NameEN: nameEN,
		}
		if err := store.SaveCard(ctx, card); err != nil {
			return err
		}
		logger.Info("card registered",
			slog.String("number", number),
			slog.String("name", card.DisplayName()),
		)
	}
	return nil
}

// readLines returns the non-empty trimmed lines of path; a missing file
// yields no lines rather than an error.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
