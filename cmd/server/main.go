// @title                       Intranet Realtime API
// @version                     1.0
// @description                 Chat rooms, presence and notifications for the intranet.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by the identity provider token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/intranet/realtime-system/internal/api"
	"github.com/intranet/realtime-system/internal/core/ports"
	"github.com/intranet/realtime-system/internal/core/service"
	"github.com/intranet/realtime-system/internal/infrastructure/db/mongo"
	"github.com/intranet/realtime-system/internal/infrastructure/db/redis"
	"github.com/intranet/realtime-system/internal/infrastructure/queue"
	"github.com/intranet/realtime-system/internal/infrastructure/ws"
	"github.com/intranet/realtime-system/internal/pkg/config"
	"github.com/intranet/realtime-system/pkg/logger"
)

const (
	serviceName     = "realtime-system"
	shutdownTimeout = 15 * time.Second
)

func main() {
	// A missing .env is fine: production sets the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: serviceName,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Stores ---
	mongoClient, db, err := mongo.Connect(ctx, mongo.Config{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		AppName:     serviceName,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()

	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	userRepo := mongo.NewUserRepository(db)
	groupRepo := mongo.NewGroupRepository(db)
	messageRepo := mongo.NewMessageRepository(db)
	notificationRepo := mongo.NewNotificationRepository(db)

	if err := mongo.EnsureIndexes(ctx, userRepo, groupRepo, messageRepo, notificationRepo); err != nil {
		return err
	}

	presence := redis.NewPresenceStore(rdb, cfg.Presence.TTL)
	dedup := redis.NewDedupChecker(rdb)
	limiter, err := redis.NewFixedWindowLimiter(rdb, "ratelimit:chat", cfg.Chat.SendRateLimit, cfg.Chat.SendRateWindow)
	if err != nil {
		return err
	}

	// --- Socket delivery ---
	hub := ws.NewHub(logger.Component("hub"))
	var broadcaster ports.Broadcaster = hub
	var relay *ws.Relay
	if cfg.Socket.RelayEnabled {
		relay = ws.NewRelay(hub, rdb, cfg.Socket.RelayChannel, logger.Component("relay"))
		broadcaster = relay
	}

	// --- Services ---
	userService := service.NewUserService(userRepo, logger.Component("users"))
	groupService := service.NewGroupService(groupRepo, userRepo, logger.Component("groups"))
	notificationService := service.NewNotificationService(notificationRepo, broadcaster,
		service.NotificationConfig{PreviewLength: cfg.Chat.NotificationChars},
		logger.Component("notifications"))

	dispatcher := queue.NewDispatcher(cfg.Chat.FanoutWorkers, notificationService, logger.Component("dispatcher"))

	chatService := service.NewChatService(service.ChatDeps{
		Access:      service.NewRoomAccess(userRepo, groupRepo, logger.Component("room_access")),
		Messages:    messageRepo,
		Users:       userRepo,
		Presence:    presence,
		Broadcaster: broadcaster,
		Fanout:      dispatcher,
		Limiter:     limiter,
		Dedup:       dedup,
	}, service.ChatConfig{
		MaxContentLength: cfg.Chat.MaxContentLength,
		HistoryLimit:     cfg.Chat.HistoryLimit,
		DedupTTL:         cfg.Chat.DedupTTL,
	}, logger.Component("chat"))

	e := api.NewRouter(api.Deps{
		DB:             db,
		Redis:          rdb,
		JWTSecret:      cfg.JWTSecret,
		Users:          userService,
		Groups:         groupService,
		Chat:           chatService,
		Notifications:  notificationService,
		Hub:            hub,
		Origins:        ws.NewOriginChecker(cfg.Socket.AllowedOrigins, logger.Component("origin")),
		MaxMessageSize: cfg.Socket.MaxMessageSize,
		Log:            log,
	})

	// --- Run ---
	dispatcher.Start(ctx)
	go hub.Run()

	g, gctx := errgroup.WithContext(ctx)
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := e.Shutdown(sctx)
		if herr := hub.Shutdown(shutdownTimeout); herr != nil {
			log.Warn().Err(herr).Msg("hub shutdown timed out")
		}
		dispatcher.Close()
		dispatcher.Wait()
		return err
	})

	return g.Wait()
}
