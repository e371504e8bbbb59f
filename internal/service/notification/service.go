package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// Pusher delivers a frame to every live connection of recipient and reports how many accepted it.
type Pusher interface {
	Push(ctx context.Context, recipient uuid.UUID, payload []byte) int
}

// Event describes one notification to create.
type Event struct {
	RecipientID uuid.UUID
	SenderID    *uuid.UUID
	Type        model.NotificationType
	Message     string
	RelatedID   *uuid.UUID
	Link        string
}

// Notifier is the dispatcher surface other services depend on.
type Notifier interface {
	Notify(ctx context.Context, event Event) (*model.Notification, error)
}

type Service struct {
	repo    repository.NotificationRepository
	pusher  Pusher
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo repository.NotificationRepository, pusher Pusher, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		pusher:  pusher,
		logger:  logger.With().Str("component", "notification").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

// Notify persists the notification and then pushes it to the recipient's live connections.
// A recipient without connections is not an error; the stored record is picked up on the next poll.
func (s *Service) Notify(ctx context.Context, event Event) (*model.Notification, error) {
	if event.RecipientID == uuid.Nil {
		return nil, apperrors.MissingField("recipient_id")
	}

	n := &model.Notification{
		ID:          uuid.New(),
		RecipientID: event.RecipientID,
		SenderID:    event.SenderID,
		Type:        event.Type,
		Message:     event.Message,
		RelatedID:   event.RelatedID,
		Link:        event.Link,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, apperrors.Dependency("persist notification", err)
	}
	s.metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	s.push(ctx, n)
	return n, nil
}

func (s *Service) push(ctx context.Context, n *model.Notification) {
	if s.pusher == nil {
		return
	}

	payload, err := json.Marshal(model.LiveEvent{Type: model.LiveEventNotification, Notification: n})
	if err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to encode live event")
		return
	}

	delivered := s.pusher.Push(ctx, n.RecipientID, payload)
	outcome := "offline"
	if delivered > 0 {
		outcome = "delivered"
	}
	s.metrics.LivePushes.WithLabelValues(outcome).Inc()

	s.logger.Debug().
		Str("notification_id", n.ID.String()).
		Str("recipient", n.RecipientID.String()).
		Int("connections", delivered).
		Msg("Live push attempted")
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID uuid.UUID, filter model.NotificationFilter) ([]*model.Notification, error) {
	if filter.Limit <= 0 || filter.Limit > repository.DefaultListLimit {
		filter.Limit = repository.DefaultListLimit
	}
	list, err := s.repo.ListByRecipient(ctx, recipientID, filter)
	if err != nil {
		return nil, apperrors.Dependency("list notifications", err)
	}
	return list, nil
}

func (s *Service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id, recipientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("notification", err)
		}
		return apperrors.Dependency("mark notification read", err)
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, apperrors.Dependency("mark notifications read", err)
	}
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	n, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, apperrors.Dependency("count unread notifications", err)
	}
	return n, nil
}
