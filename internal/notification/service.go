package notification

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"buddychat/internal/apperr"
	"buddychat/internal/pubsub"
	"buddychat/internal/store"
)

// Event is one notification waiting to be stored and pushed.
type Event struct {
	UserID      int64
	Type        store.NotificationType
	Title       string
	Message     string
	RelatedID   int64
	RelatedType string
}

type Service struct {
	store  store.NotificationStore
	router pubsub.Router
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(s store.NotificationStore, router pubsub.Router, log zerolog.Logger) *Service {
	return &Service{
		store:  s,
		router: router,
		log:    log.With().Str("component", "notification").Logger(),
		now:    time.Now,
	}
}

// Notify stores the notification, then pushes it to the user's personal
// topic. The push is best effort; the stored row is what clients poll.
func (s *Service) Notify(ctx context.Context, ev Event) (*store.Notification, error) {
	n := &store.Notification{
		UserID:      ev.UserID,
		Type:        ev.Type,
		Title:       ev.Title,
		Message:     ev.Message,
		RelatedID:   ev.RelatedID,
		RelatedType: ev.RelatedType,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("saving notification", err)
	}
	s.log.Debug().Int64("user_id", n.UserID).Str("title", n.Title).Msg("notification created")

	if err := s.router.Publish(pubsub.NotificationTopic(n.UserID), n); err != nil {
		s.log.Error().Err(err).Int64("user_id", n.UserID).Msg("failed to push notification")
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, userID int64) ([]*store.Notification, error) {
	return s.list(ctx, userID, false)
}

func (s *Service) Unread(ctx context.Context, userID int64) ([]*store.Notification, error) {
	return s.list(ctx, userID, true)
}

func (s *Service) list(ctx context.Context, userID int64, unreadOnly bool) ([]*store.Notification, error) {
	list, err := s.store.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, apperr.Internal("listing notifications", err)
	}
	if list == nil {
		list = []*store.Notification{}
	}
	return list, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	n, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("counting notifications", err)
	}
	return n, nil
}

// owned loads notification id and checks it belongs to userID.
func (s *Service) owned(ctx context.Context, id, userID int64) (*store.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("notification not found")
	}
	if err != nil {
		return nil, apperr.Internal("loading notification", err)
	}
	if n.UserID != userID {
		return nil, apperr.Unauthorized("notification belongs to another user")
	}
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, id, userID int64) (*store.Notification, error) {
	n, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkNotificationRead(ctx, id); err != nil {
		return nil, apperr.Internal("marking notification read", err)
	}
	n.IsRead = true
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) error {
	n, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return apperr.Internal("marking notifications read", err)
	}
	s.log.Info().Int64("user_id", userID).Int("count", n).Msg("marked all notifications read")
	return nil
}

func (s *Service) Delete(ctx context.Context, id, userID int64) error {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return err
	}
	if err := s.store.DeleteNotification(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return apperr.Internal("deleting notification", err)
	}
	return nil
}

// DeleteOlderThan removes notifications created more than age ago.
func (s *Service) DeleteOlderThan(ctx context.Context, age time.Duration) (int, error) {
	n, err := s.store.DeleteNotificationsBefore(ctx, s.now().Add(-age))
	if err != nil {
		return 0, apperr.Internal("cleaning notifications", err)
	}
	return n, nil
}
