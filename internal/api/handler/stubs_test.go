package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/intranet/realtime-system/internal/api/middleware"
	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

// newContext builds an echo context carrying the claims the Auth middleware
// would have set. An empty userID leaves the request unauthenticated.
func newContext(method, target, body, userID, role string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set(middleware.CtxUserID, userID)
		c.Set(middleware.CtxRole, role)
	}
	return c, rec
}

type stubChatService struct {
	mu sync.Mutex

	joinFn     func(ports.JoinInput) (*domain.PresenceEntry, error)
	sendFn     func(ports.SendMessageInput) (*domain.MessageView, error)
	typingFn   func(ports.TypingInput) error
	historyFn  func(ports.HistoryInput) (*ports.HistoryResult, error)
	presenceFn func(userID, roomID string) ([]domain.PresenceEntry, error)

	left chan string
}

func (s *stubChatService) Join(_ context.Context, in ports.JoinInput) (*domain.PresenceEntry, error) {
	if s.joinFn != nil {
		return s.joinFn(in)
	}
	return &domain.PresenceEntry{ConnID: in.ConnID, UserID: in.UserID, RoomID: in.RoomID}, nil
}

func (s *stubChatService) Leave(_ context.Context, connID string) (*domain.PresenceEntry, error) {
	if s.left != nil {
		select {
		case s.left <- connID:
		default:
		}
	}
	return nil, nil
}

func (s *stubChatService) SendMessage(_ context.Context, in ports.SendMessageInput) (*domain.MessageView, error) {
	s.mu.Lock()
	fn := s.sendFn
	s.mu.Unlock()
	if fn != nil {
		return fn(in)
	}
	return &domain.MessageView{Message: domain.Message{ID: "m1", UserID: in.UserID, RoomID: in.RoomID, Content: in.Content}}, nil
}

func (s *stubChatService) Typing(_ context.Context, in ports.TypingInput) error {
	if s.typingFn != nil {
		return s.typingFn(in)
	}
	return nil
}

func (s *stubChatService) Heartbeat(_ context.Context, _ string) error { return nil }

func (s *stubChatService) History(_ context.Context, in ports.HistoryInput) (*ports.HistoryResult, error) {
	return s.historyFn(in)
}

func (s *stubChatService) Presence(_ context.Context, userID, roomID string) ([]domain.PresenceEntry, error) {
	return s.presenceFn(userID, roomID)
}

func (s *stubChatService) setSend(fn func(ports.SendMessageInput) (*domain.MessageView, error)) {
	s.mu.Lock()
	s.sendFn = fn
	s.mu.Unlock()
}

type stubNotificationService struct {
	ports.NotificationService

	listFn   func(ports.ListNotificationsInput) (*ports.NotificationPage, error)
	createFn func(ports.CreateNotificationInput) (*ports.FanoutReport, error)
	setRead  func(userID, id string, read bool) error
}

func (s *stubNotificationService) List(_ context.Context, in ports.ListNotificationsInput) (*ports.NotificationPage, error) {
	return s.listFn(in)
}

func (s *stubNotificationService) Create(_ context.Context, in ports.CreateNotificationInput) (*ports.FanoutReport, error) {
	return s.createFn(in)
}

func (s *stubNotificationService) SetRead(_ context.Context, userID, id string, read bool) error {
	return s.setRead(userID, id, read)
}

func (s *stubNotificationService) UnreadCount(_ context.Context, _ string) (int64, error) {
	return 3, nil
}

type stubUserService struct {
	ports.UserService

	syncFn   func(ports.SyncUserInput) (*domain.User, error)
	updateFn func(actorRole, id string, patch ports.UserPatch) (*domain.User, error)
}

func (s *stubUserService) Sync(_ context.Context, in ports.SyncUserInput) (*domain.User, error) {
	return s.syncFn(in)
}

func (s *stubUserService) Update(_ context.Context, actorRole, id string, patch ports.UserPatch) (*domain.User, error) {
	return s.updateFn(actorRole, id, patch)
}

type stubGroupService struct {
	ports.GroupService

	createFn func(ports.CreateGroupInput) (*ports.GroupDetail, error)
	addFn    func(actorID, actorRole, groupID, userID string) error
}

func (s *stubGroupService) Create(_ context.Context, in ports.CreateGroupInput) (*ports.GroupDetail, error) {
	return s.createFn(in)
}

func (s *stubGroupService) AddMember(_ context.Context, actorID, actorRole, groupID, userID string) error {
	return s.addFn(actorID, actorRole, groupID, userID)
}
