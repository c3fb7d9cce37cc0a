// Package setup bootstraps the application: configuration, logging, storage,
// Discord connectivity and one lifecycle controller per moderation kind.
package setup

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	disgoevents "github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/redis/rueidis"
	"github.com/robalyx/modcase/internal/database"
	"github.com/robalyx/modcase/internal/database/types/enum"
	moddiscord "github.com/robalyx/modcase/internal/discord"
	"github.com/robalyx/modcase/internal/moderation"
	"github.com/robalyx/modcase/internal/moderation/events"
	"github.com/robalyx/modcase/internal/redis"
	"github.com/robalyx/modcase/internal/setup/config"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config                                 // Application configuration
	Logger       *zap.Logger                                    // Main application logger
	DB           database.Client                                // Database connection pool
	RedisManager *redis.Manager                                 // Redis connection manager
	StatusClient rueidis.Client                                 // Redis client for status reporting
	Discord      bot.Client                                     // Discord gateway and REST client
	Hub          *events.Hub                                    // In-process update bus
	Controllers  map[enum.ModerationKind]*moderation.Controller // One controller per kind
	Control      *moderation.Control                            // Cross-kind case editing
	Alerter      moderation.Alerter                             // Operator alert sink
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context) (*App, error) {
	// Load app configuration
	cfg, configDir, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logger, err := NewLogger(cfg.Debug.LogLevel)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded configuration", zap.String("dir", configDir))

	// Redis manager provides connection pools for various subsystems
	redisManager := redis.NewManager(&cfg.Redis, logger)

	statusClient, err := redisManager.GetClient(redis.StatusDBIndex)
	if err != nil {
		return nil, err
	}

	// Initialize database and apply pending migrations
	db, err := database.NewConnection(ctx, &cfg.PostgreSQL, logger.Named("database"), true)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		RedisManager: redisManager,
		StatusClient: statusClient,
	}

	// The member join listener re-applies persisted effects; controllers are
	// wired below, before the gateway opens
	client, err := disgo.New(cfg.Discord.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
			),
		),
		bot.WithEventListeners(&disgoevents.ListenerAdapter{
			OnGuildMemberJoin: app.handleMemberJoin(ctx),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord client: %w", err)
	}

	app.Discord = client

	if cfg.Discord.AlertChannelID != 0 {
		app.Alerter = moddiscord.NewChannelAlerter(client, cfg.Discord.AlertChannelID, logger)
	} else {
		app.Alerter = moderation.NewLogAlerter(logger)
	}

	app.Hub = events.NewHub(logger)
	app.Controllers = buildControllers(ctx, app)
	app.Control = moderation.NewControl(db.Model().Moderation(), app.Hub, logger)

	return app, nil
}

// buildControllers creates one lifecycle controller per kind, all sharing the
// issuance mutex, allocator, store and update bus.
func buildControllers(ctx context.Context, app *App) map[enum.ModerationKind]*moderation.Controller {
	cfg := app.Config
	store := app.DB.Model().Moderation()
	allocator := moderation.NewCaseAllocator(app.DB.Model().Counter())
	issueMu := &sync.Mutex{}

	effects := map[enum.ModerationKind]moderation.Effect{
		enum.ModerationKindMute: moddiscord.NewMuteEffect(
			app.Discord, cfg.Discord.GuildID, cfg.Discord.MuteRoleID),
		enum.ModerationKindRolePersist: moddiscord.NewRolePersistEffect(
			app.Discord, cfg.Discord.GuildID),
		enum.ModerationKindBan: moddiscord.NewBanEffect(
			app.Discord, cfg.Discord.GuildID),
		enum.ModerationKindKick: moddiscord.NewKickEffect(
			app.Discord, cfg.Discord.GuildID),
		enum.ModerationKindWarn: moddiscord.NewNoopEffect(),
		enum.ModerationKindNote: moddiscord.NewNoopEffect(),
	}

	controllers := make(map[enum.ModerationKind]*moderation.Controller, len(effects))

	for kind, effect := range effects {
		controllers[kind] = moderation.NewController(ctx, moderation.Config{
			Kind:            kind,
			Store:           store,
			Allocator:       allocator,
			Effect:          effect,
			Hub:             app.Hub,
			Alerter:         app.Alerter,
			Logger:          app.Logger,
			IssueMu:         issueMu,
			SystemActorID:   cfg.Moderation.SystemActorID,
			DuplicateWindow: time.Duration(cfg.Moderation.DuplicateWindow) * time.Second,
			ExpiryLeeway:    time.Duration(cfg.Moderation.ExpiryLeeway) * time.Millisecond,
		})
	}

	return controllers
}

// handleMemberJoin re-applies this guild's persisted effects when a member
// rejoins; roles are lost on leave, records are not.
func (s *App) handleMemberJoin(ctx context.Context) func(*disgoevents.GuildMemberJoin) {
	return func(event *disgoevents.GuildMemberJoin) {
		if uint64(event.GuildID) != s.Config.Discord.GuildID {
			return
		}

		userID := uint64(event.Member.User.ID)

		for _, controller := range s.Controllers {
			if err := controller.ReapplyForUser(ctx, userID); err != nil {
				s.Logger.Error("Failed to re-apply effects on rejoin",
					zap.Uint64("user_id", userID),
					zap.Stringer("kind", controller.Kind()),
					zap.Error(err))
			}
		}
	}
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	for _, controller := range s.Controllers {
		controller.Stop()
	}

	if s.Discord != nil {
		s.Discord.Close(ctx)
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	s.RedisManager.Close()
}
