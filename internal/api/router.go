package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/intranet/realtime-system/docs"
	"github.com/intranet/realtime-system/internal/api/handler"
	"github.com/intranet/realtime-system/internal/api/middleware"
	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
	"github.com/intranet/realtime-system/internal/infrastructure/ws"
)

// Deps are the collaborators the HTTP layer is built on.
type Deps struct {
	DB        *mongo.Database
	Redis     *redis.Client
	JWTSecret string

	Users         ports.UserService
	Groups        ports.GroupService
	Chat          ports.ChatService
	Notifications ports.NotificationService

	Hub            *ws.Hub
	Origins        *ws.OriginChecker
	MaxMessageSize int64

	Log zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddleware("realtime"))

	// --- Handlers ---
	userHandler := handler.NewUserHandler(d.Users)
	groupHandler := handler.NewGroupHandler(d.Groups)
	chatHandler := handler.NewChatHandler(d.Chat)
	notificationHandler := handler.NewNotificationHandler(d.Notifications)
	socketHandler := handler.NewSocketHandler(d.Chat, d.Hub, d.Origins, d.MaxMessageSize,
		d.Log.With().Str("component", "socket").Logger())

	auth := middleware.Auth(d.JWTSecret)
	adminOnly := middleware.RBAC(domain.RoleAdmin)

	// --- Health checks, metrics and docs (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(d.DB, d.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- WebSocket ---
	e.GET("/ws", socketHandler.Serve, auth)

	v1 := e.Group("/v1", auth)

	// --- Users ---
	v1.POST("/users/sync", userHandler.Sync)
	v1.GET("/users/me", userHandler.Me)
	v1.GET("/users", userHandler.Search)
	v1.PATCH("/users/:id", userHandler.Update, adminOnly)
	v1.DELETE("/users/:id", userHandler.Deactivate, adminOnly)

	// --- Groups ---
	v1.POST("/groups", groupHandler.Create)
	v1.GET("/groups", groupHandler.List)
	v1.GET("/groups/:id", groupHandler.Get)
	v1.POST("/groups/:id/members", groupHandler.AddMember)
	v1.DELETE("/groups/:id/members/:user_id", groupHandler.RemoveMember)

	// --- Rooms ---
	v1.GET("/rooms/:room/messages", chatHandler.History)
	v1.POST("/rooms/:room/messages", chatHandler.Send)
	v1.GET("/rooms/:room/presence", chatHandler.Presence)

	// --- Notifications ---
	v1.GET("/notifications", notificationHandler.List)
	v1.GET("/notifications/unread-count", notificationHandler.UnreadCount)
	v1.POST("/notifications/read-all", notificationHandler.MarkAllRead)
	v1.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
	v1.PATCH("/notifications/:id/unread", notificationHandler.MarkUnread)
	v1.DELETE("/notifications/:id", notificationHandler.Delete)
	v1.POST("/notifications", notificationHandler.Create, adminOnly)

	return e
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Status >= 500 {
				evt = log.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
