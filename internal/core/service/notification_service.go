package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
	"github.com/intranet/realtime-system/internal/pkg/metrics"
)

const (
	defaultPreviewLength = 100
	defaultPageLimit     = 20
	maxPageLimit         = 100

	imageOnlyBody = "Enviou uma imagem"
)

// NotificationConfig holds the notification tunables.
type NotificationConfig struct {
	PreviewLength int
}

type notificationService struct {
	repo        ports.NotificationRepository
	broadcaster ports.Broadcaster
	cfg         NotificationConfig
	log         zerolog.Logger
	now         func() time.Time
}

// NewNotificationService returns a NotificationService. broadcaster may be
// nil, in which case nothing is pushed to connected sockets.
func NewNotificationService(repo ports.NotificationRepository, broadcaster ports.Broadcaster, cfg NotificationConfig, log zerolog.Logger) ports.NotificationService {
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = defaultPreviewLength
	}
	return &notificationService{
		repo:        repo,
		broadcaster: broadcaster,
		cfg:         cfg,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// FanOutChatMessage writes one chat notification per recipient.
func (s *notificationService) FanOutChatMessage(ctx context.Context, job ports.FanoutJob) (*ports.FanoutReport, error) {
	msg := job.Message

	body := imageOnlyBody
	if text := msg.Text(); text != "" {
		body = domain.Preview(text, s.cfg.PreviewLength)
	}

	sender := strings.TrimSpace(msg.User.FirstName + " " + msg.User.LastName)
	if sender == "" {
		sender = msg.UserID
	}

	tmpl := domain.Notification{
		Title:      "Nova mensagem de " + sender,
		Message:    body,
		Type:       domain.NotificationChat,
		Channel:    domain.ChannelChat,
		EntityID:   msg.ID,
		EntityType: domain.EntityChatMessage,
		ActionURL:  "/chat?room=" + msg.RoomID,
	}

	recipients := lo.Uniq(lo.Filter(job.Recipients, func(id string, _ int) bool {
		return id != "" && id != msg.UserID
	}))

	report, err := s.create(ctx, tmpl, recipients)
	if err != nil {
		return report, err
	}

	s.log.Info().
		Str("message_id", msg.ID).
		Str("room", msg.RoomID).
		Int("created", report.Created()).
		Int("failed", len(report.Failed())).
		Msg("chat notifications fanned out")
	return report, nil
}

// Create writes a notification for each of the given users.
func (s *notificationService) Create(ctx context.Context, in ports.CreateNotificationInput) (*ports.FanoutReport, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Message) == "" {
		return nil, domain.ErrInvalidNotification
	}
	if in.Type == "" {
		in.Type = domain.NotificationSystem
	}
	if !in.Type.IsValid() {
		return nil, domain.ErrInvalidNotification
	}
	if in.Channel == "" {
		in.Channel = domain.ChannelInApp
	}

	recipients := lo.Uniq(lo.Compact(in.UserIDs))
	if len(recipients) == 0 {
		return nil, domain.ErrInvalidNotification
	}

	return s.create(ctx, domain.Notification{
		Title:      in.Title,
		Message:    in.Message,
		Type:       in.Type,
		Channel:    in.Channel,
		EntityID:   in.EntityID,
		EntityType: in.EntityType,
		ActionURL:  in.ActionURL,
	}, recipients)
}

// create stamps tmpl for every recipient and writes the batch. A failed row
// never prevents the others from being written.
func (s *notificationService) create(ctx context.Context, tmpl domain.Notification, recipients []string) (*ports.FanoutReport, error) {
	report := &ports.FanoutReport{Results: make([]ports.DeliveryResult, len(recipients))}
	if len(recipients) == 0 {
		return report, nil
	}

	now := s.now()
	rows := make([]*domain.Notification, len(recipients))
	for i, userID := range recipients {
		n := tmpl
		n.ID = uuid.NewString()
		n.UserID = userID
		n.IsRead = false
		n.ReadAt = nil
		n.CreatedAt = now
		rows[i] = &n
		report.Results[i] = ports.DeliveryResult{UserID: userID, NotificationID: n.ID}
	}

	results, err := s.repo.InsertMany(ctx, rows)
	if err != nil {
		for i := range report.Results {
			report.Results[i].NotificationID = ""
			report.Results[i].Err = err
		}
		metrics.NotificationsFailedTotal.WithLabelValues(string(tmpl.Type)).Add(float64(len(rows)))
		s.log.Error().Err(err).Str("type", string(tmpl.Type)).Int("recipients", len(rows)).Msg("notification batch failed")
		return report, fmt.Errorf("create notifications: %w", err)
	}

	for _, r := range results {
		if r.Err == nil || r.Index < 0 || r.Index >= len(report.Results) {
			continue
		}
		report.Results[r.Index].NotificationID = ""
		report.Results[r.Index].Err = r.Err
	}

	for i, res := range report.Results {
		if res.Err != nil {
			metrics.NotificationsFailedTotal.WithLabelValues(string(tmpl.Type)).Inc()
			s.log.Warn().Err(res.Err).Str("user_id", res.UserID).Msg("notification not created")
			continue
		}
		metrics.NotificationsCreatedTotal.WithLabelValues(string(tmpl.Type)).Inc()
		s.push(ctx, rows[i])
	}
	return report, nil
}

func (s *notificationService) push(ctx context.Context, n *domain.Notification) {
	if s.broadcaster == nil {
		return
	}
	err := s.broadcaster.SendToUser(ctx, n.UserID, domain.Event{Name: domain.EventNewNotification, Data: n})
	if err != nil {
		s.log.Debug().Err(err).Str("user_id", n.UserID).Msg("notification push failed")
	}
}

// List returns a page of the user's notifications, newest first.
func (s *notificationService) List(ctx context.Context, in ports.ListNotificationsInput) (*ports.NotificationPage, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	items, total, err := s.repo.List(ctx, ports.NotificationFilter{
		UserID:     in.UserID,
		UnreadOnly: in.UnreadOnly,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if items == nil {
		items = []*domain.Notification{}
	}

	return &ports.NotificationPage{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *notificationService) SetRead(ctx context.Context, userID, id string, read bool) error {
	return s.repo.SetRead(ctx, userID, id, read)
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}

func (s *notificationService) Delete(ctx context.Context, userID, id string) error {
	return s.repo.Delete(ctx, userID, id)
}
