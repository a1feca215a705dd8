// Package factory wires the application's components together.
package factory

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/mcoot/tradegame-bot/internal/bot"
	"github.com/mcoot/tradegame-bot/internal/dependencies/clock"
	"github.com/mcoot/tradegame-bot/internal/dependencies/random"
	"github.com/mcoot/tradegame-bot/internal/platform"
	"github.com/mcoot/tradegame-bot/internal/services/announce"
	"github.com/mcoot/tradegame-bot/internal/services/auth"
	"github.com/mcoot/tradegame-bot/internal/services/inventory"
	"github.com/mcoot/tradegame-bot/internal/services/mission"
	"github.com/mcoot/tradegame-bot/internal/services/trade"
	"github.com/mcoot/tradegame-bot/internal/session"
	"github.com/mcoot/tradegame-bot/internal/storage"
	"github.com/mcoot/tradegame-bot/internal/storage/memory"
	postgresstorage "github.com/mcoot/tradegame-bot/internal/storage/postgres"
	redisstorage "github.com/mcoot/tradegame-bot/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage  storage.Storage
	Sessions session.Store

	// External dependencies
	Clock    clock.Clock
	Random   random.Random
	Platform platform.Client

	// Services
	AuthService      *auth.Service
	InventoryService *inventory.Service
	MissionService   *mission.Service
	AnnounceService  *announce.Service
	TradeEngine      *trade.Engine
	Router           *bot.Router
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// Platform is the messaging client used for pushes (required)
	Platform platform.Client
	// StorageType selects the storage backend ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// DatabaseURL is the Postgres connection string (required if StorageType is "postgres")
	DatabaseURL string
	// TradeConfig holds the trade protocol timing (optional)
	TradeConfig trade.Config
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	if cfg.Platform == nil {
		return nil, errors.New("Platform is required")
	}

	// Create storage based on type
	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	case StorageTypePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DatabaseURL required when StorageType is postgres")
		}
		pgStore, err := postgresstorage.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = pgStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory', 'redis' or 'postgres'")
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	return NewWithDependencies(store, cfg.Platform, clk, rnd, cfg.TradeConfig, logger), nil
}

// NewWithDependencies creates an App with the given dependencies (useful for testing)
func NewWithDependencies(
	store storage.Storage,
	client platform.Client,
	clk clock.Clock,
	rnd random.Random,
	tradeCfg trade.Config,
	logger *slog.Logger,
) *App {
	sessions := session.NewMemoryStore()

	authService := auth.New(store, sessions, clk, rnd, logger)
	inventoryService := inventory.New(store, logger)
	missionService := mission.New(store, clk, logger)
	announceService := announce.New(store, sessions, client, clk, logger)
	tradeEngine := trade.NewEngine(store, client, clk, rnd, logger, tradeCfg)

	router := bot.NewRouter(store, authService, inventoryService, missionService, announceService, tradeEngine, logger)

	return &App{
		Storage:          store,
		Sessions:         sessions,
		Clock:            clk,
		Random:           rnd,
		Platform:         client,
		AuthService:      authService,
		InventoryService: inventoryService,
		MissionService:   missionService,
		AnnounceService:  announceService,
		TradeEngine:      tradeEngine,
		Router:           router,
	}
}
