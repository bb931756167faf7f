package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
	"github.com/intranet/realtime-system/internal/pkg/metrics"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	defaultDedupTTL     = 10 * time.Minute
)

// ChatConfig holds the tunables of the chat flow.
type ChatConfig struct {
	MaxContentLength int
	HistoryLimit     int
	DedupTTL         time.Duration
}

// ChatDeps are the collaborators of the chat service. Limiter and Dedup are
// optional.
type ChatDeps struct {
	Access      RoomAuthorizer
	Messages    ports.MessageRepository
	Users       ports.UserRepository
	Presence    ports.PresenceStore
	Broadcaster ports.Broadcaster
	Fanout      ports.FanoutScheduler
	Limiter     ports.RateLimiter
	Dedup       ports.DedupChecker
}

type chatService struct {
	deps ChatDeps
	cfg  ChatConfig
	log  zerolog.Logger
	now  func() time.Time
}

// NewChatService returns a ChatService implementation.
func NewChatService(deps ChatDeps, cfg ChatConfig, log zerolog.Logger) ports.ChatService {
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > maxHistoryLimit {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	return &chatService{
		deps: deps,
		cfg:  cfg,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Join authorizes the user for the room and moves the connection into it.
func (s *chatService) Join(ctx context.Context, in ports.JoinInput) (*domain.PresenceEntry, error) {
	key, err := s.deps.Access.Authorize(ctx, in.UserID, in.RoomID)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", in.RoomID, err)
	}

	now := s.now()
	entry := domain.PresenceEntry{
		ConnID:   in.ConnID,
		UserID:   in.UserID,
		RoomID:   key.Raw,
		JoinedAt: now,
		LastSeen: now,
	}
	prev, err := s.deps.Presence.Join(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("join %s: presence: %w", key.Raw, err)
	}
	s.deps.Broadcaster.Attach(in.ConnID, key.Raw)

	if prev != nil && prev.RoomID != key.Raw {
		s.notifyRoom(ctx, prev.RoomID, domain.EventUserLeft, in.ConnID,
			domain.RoomUserPayload{UserID: in.UserID, RoomID: prev.RoomID})
	}
	if prev == nil || prev.RoomID != key.Raw {
		s.notifyRoom(ctx, key.Raw, domain.EventUserJoined, in.ConnID,
			domain.RoomUserPayload{UserID: in.UserID, RoomID: key.Raw})
	}

	s.log.Debug().Str("conn_id", in.ConnID).Str("user_id", in.UserID).Str("room", key.Raw).Msg("joined room")
	return &entry, nil
}

// Leave detaches the connection from its room. It returns nil, nil when the
// connection was not in any room.
func (s *chatService) Leave(ctx context.Context, connID string) (*domain.PresenceEntry, error) {
	s.deps.Broadcaster.Detach(connID)

	entry, err := s.deps.Presence.Leave(ctx, connID)
	if errors.Is(err, domain.ErrPresenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leave: presence: %w", err)
	}

	s.notifyRoom(ctx, entry.RoomID, domain.EventUserLeft, connID,
		domain.RoomUserPayload{UserID: entry.UserID, RoomID: entry.RoomID})

	s.log.Debug().Str("conn_id", connID).Str("user_id", entry.UserID).Str("room", entry.RoomID).Msg("left room")
	return entry, nil
}

// SendMessage validates, authorizes, persists and broadcasts a message, then
// schedules notifications for the other users present in the room.
func (s *chatService) SendMessage(ctx context.Context, in ports.SendMessageInput) (*domain.MessageView, error) {
	// 1. Shape checks.
	content := in.Content
	if content != nil && strings.TrimSpace(*content) == "" {
		content = nil
	}
	if content == nil && in.ImageURL == "" {
		metrics.MessagesRejectedTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrEmptyMessage
	}
	if content != nil && s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(*content) > s.cfg.MaxContentLength {
		metrics.MessagesRejectedTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrMessageTooLong
	}

	// 2. Membership is re-checked on every send.
	key, err := s.deps.Access.Authorize(ctx, in.UserID, in.RoomID)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	// 3. Per-user rate limit. Limiter failures deny the send.
	if s.deps.Limiter != nil {
		ok, err := s.deps.Limiter.Allow(ctx, "send:"+in.UserID)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", in.UserID).Msg("rate limiter unavailable")
		}
		if err != nil || !ok {
			metrics.MessagesRejectedTotal.WithLabelValues("rate_limited").Inc()
			return nil, domain.ErrRateLimited
		}
	}

	// 4. Drop client retries of an already accepted message.
	var dedupKey string
	if in.ClientMessageID != "" && s.deps.Dedup != nil {
		key := "msg:" + in.UserID + ":" + in.ClientMessageID
		isNew, err := s.deps.Dedup.MarkIfNew(ctx, key, s.cfg.DedupTTL)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", in.UserID).Msg("dedup check failed, processing anyway")
		} else if isNew {
			dedupKey = key
		} else {
			metrics.MessagesRejectedTotal.WithLabelValues("duplicate").Inc()
			s.log.Debug().Str("user_id", in.UserID).Str("client_message_id", in.ClientMessageID).Msg("duplicate message skipped")
			return nil, domain.ErrDuplicateMessage
		}
	}

	// 5. Persist exactly one row.
	msg := &domain.Message{
		ID:        uuid.NewString(),
		Content:   content,
		ImageURL:  in.ImageURL,
		UserID:    in.UserID,
		RoomID:    key.Raw,
		CreatedAt: s.now(),
	}
	if key.Kind == domain.RoomGroup {
		groupID := key.GroupID
		msg.GroupID = &groupID
	}
	if err := s.deps.Messages.Create(ctx, msg); err != nil {
		s.forgetDedup(ctx, dedupKey)
		return nil, fmt.Errorf("send message: persist: %w", err)
	}
	metrics.MessagesSentTotal.WithLabelValues(string(key.Kind)).Inc()

	view := domain.MessageView{Message: *msg, User: s.sender(ctx, in.UserID)}

	// 6. Deliver to every socket currently in the room, sender included.
	if err := s.deps.Broadcaster.BroadcastToRoom(ctx, key.Raw, domain.Event{Name: domain.EventReceiveMessage, Data: view}, ""); err != nil {
		s.log.Warn().Err(err).Str("room", key.Raw).Str("message_id", msg.ID).Msg("broadcast failed")
	}

	// 7. Notify every other user present at send time.
	s.scheduleFanout(ctx, view)

	s.log.Info().
		Str("message_id", msg.ID).
		Str("room", key.Raw).
		Str("user_id", in.UserID).
		Msg("message sent")

	return &view, nil
}

// forgetDedup releases the retry key of a message that was not stored.
func (s *chatService) forgetDedup(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.deps.Dedup.Forget(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn().Err(err).Str("dedup_key", key).Msg("failed to release dedup key, retries will be dropped until it expires")
	}
}

func (s *chatService) sender(ctx context.Context, userID string) domain.Sender {
	user, err := s.deps.Users.FindByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to load sender")
		}
		return domain.Sender{ID: userID}
	}
	return user.AsSender()
}

func (s *chatService) scheduleFanout(ctx context.Context, view domain.MessageView) {
	entries, err := s.deps.Presence.InRoom(ctx, view.RoomID)
	if err != nil {
		s.log.Warn().Err(err).Str("room", view.RoomID).Msg("presence lookup failed, skipping notifications")
		return
	}

	recipients := lo.Uniq(lo.FilterMap(entries, func(e domain.PresenceEntry, _ int) (string, bool) {
		return e.UserID, e.UserID != view.UserID
	}))
	if len(recipients) == 0 {
		return
	}

	if err := s.deps.Fanout.Schedule(ctx, ports.FanoutJob{Message: view, Recipients: recipients}); err != nil {
		s.log.Error().Err(err).
			Str("message_id", view.ID).
			Int("recipients", len(recipients)).
			Msg("failed to schedule notification fan-out")
	}
}

// Typing relays a typing indicator to the rest of the room. The connection
// must currently be present in that room.
func (s *chatService) Typing(ctx context.Context, in ports.TypingInput) error {
	key, err := domain.ParseRoomKey(in.RoomID)
	if err != nil {
		return err
	}
	entry, err := s.deps.Presence.Get(ctx, in.ConnID)
	if errors.Is(err, domain.ErrPresenceNotFound) {
		return domain.ErrNotInRoom
	}
	if err != nil {
		return fmt.Errorf("typing: presence: %w", err)
	}
	if entry.RoomID != key.Raw || entry.UserID != in.UserID {
		return domain.ErrNotInRoom
	}

	return s.deps.Broadcaster.BroadcastToRoom(ctx, key.Raw, domain.Event{
		Name: domain.EventUserTyping,
		Data: domain.TypingPayload{UserID: in.UserID, RoomID: key.Raw, IsTyping: in.IsTyping},
	}, in.ConnID)
}

// Heartbeat keeps the connection's presence alive.
func (s *chatService) Heartbeat(ctx context.Context, connID string) error {
	err := s.deps.Presence.Touch(ctx, connID)
	if errors.Is(err, domain.ErrPresenceNotFound) {
		return nil
	}
	return err
}

// History returns a page of room messages in chronological order.
func (s *chatService) History(ctx context.Context, in ports.HistoryInput) (*ports.HistoryResult, error) {
	key, err := s.deps.Access.Authorize(ctx, in.UserID, in.RoomID)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	limit := in.Limit
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	cursor := ports.MessageCursor{CreatedAt: in.Before, ID: in.BeforeID}
	msgs, err := s.deps.Messages.ListByRoom(ctx, key.Raw, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	userIDs := lo.Uniq(lo.Map(msgs, func(m *domain.Message, _ int) string { return m.UserID }))
	senders := map[string]domain.Sender{}
	if len(userIDs) > 0 {
		users, err := s.deps.Users.FindByIDs(ctx, userIDs)
		if err != nil {
			return nil, fmt.Errorf("history: load senders: %w", err)
		}
		for _, u := range users {
			senders[u.ID] = u.AsSender()
		}
	}

	items := make([]domain.MessageView, 0, len(msgs))
	for _, m := range msgs {
		sender, ok := senders[m.UserID]
		if !ok {
			sender = domain.Sender{ID: m.UserID}
		}
		items = append(items, domain.MessageView{Message: *m, User: sender})
	}
	slices.Reverse(items)

	result := &ports.HistoryResult{Items: items}
	if len(msgs) == limit {
		oldest := msgs[len(msgs)-1]
		result.NextBefore = oldest.CreatedAt
		result.NextBeforeID = oldest.ID
	}
	return result, nil
}

// Presence lists the live connections of a room the user may access.
func (s *chatService) Presence(ctx context.Context, userID, roomID string) ([]domain.PresenceEntry, error) {
	key, err := s.deps.Access.Authorize(ctx, userID, roomID)
	if err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}
	return s.deps.Presence.InRoom(ctx, key.Raw)
}

func (s *chatService) notifyRoom(ctx context.Context, roomID, event, exceptConnID string, payload domain.RoomUserPayload) {
	err := s.deps.Broadcaster.BroadcastToRoom(ctx, roomID, domain.Event{Name: event, Data: payload}, exceptConnID)
	if err != nil {
		s.log.Warn().Err(err).Str("room", roomID).Str("event", event).Msg("room notification failed")
	}
}
