// Package group holds activity chat rooms: membership and the room channel.
package group

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"buddychat/internal/apperr"
	"buddychat/internal/notification"
	"buddychat/internal/pubsub"
	"buddychat/internal/store"
)

const maxContentRunes = 4000

type Notifier interface {
	Enqueue(ev notification.Event)
}

type Store interface {
	store.Directory
	store.RoomStore
}

type Service struct {
	store    Store
	router   pubsub.Router
	notifier Notifier
	log      zerolog.Logger
}

func NewService(s Store, router pubsub.Router, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		store:    s,
		router:   router,
		notifier: notifier,
		log:      log.With().Str("component", "group").Logger(),
	}
}

// Send stores a member's message, broadcasts it to the room topic and
// notifies every other member.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, apperr.InvalidPayload("content is required")
	}
	if utf8.RuneCountInString(content) > maxContentRunes {
		return nil, apperr.InvalidPayload("content is too long")
	}

	room, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, lookupErr(err, "room not found")
	}
	if err := s.CheckMember(ctx, room.ID, req.SenderID); err != nil {
		return nil, err
	}

	sender := req.SenderID
	gm := &store.GroupMessage{RoomID: room.ID, SenderID: &sender, Content: content}
	if err := s.store.AppendGroupMessage(ctx, gm); err != nil {
		return nil, lookupErr(err, "room not found")
	}
	msg := &Message{GroupMessage: *gm, SenderName: s.userName(ctx, sender)}
	s.log.Info().Int64("room_id", room.ID).Int64("sender_id", sender).Int64("message_id", gm.ID).Msg("group message saved")

	if err := s.router.Publish(pubsub.GroupTopic(room.ID), msg); err != nil {
		s.log.Error().Err(err).Int64("room_id", room.ID).Msg("broadcast failed")
	}

	members, err := s.store.ListMembers(ctx, room.ID)
	if err != nil {
		// The message is already stored and broadcast.
		s.log.Error().Err(err).Int64("room_id", room.ID).Msg("listing members for notification")
		return msg, nil
	}
	title := s.activityTitle(ctx, room.ActivityID)
	for _, m := range members {
		if m.UserID == sender {
			continue
		}
		s.notifier.Enqueue(notification.GroupMessageEvent(m.UserID, room.ID, msg.SenderName, title))
	}
	return msg, nil
}

// History returns every message of the room, announcements included, oldest first.
func (s *Service) History(ctx context.Context, roomID int64) ([]*Message, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, lookupErr(err, "room not found")
	}
	msgs, err := s.store.ListGroupMessages(ctx, roomID)
	if err != nil {
		return nil, apperr.Internal("loading messages", err)
	}
	names := map[int64]string{}
	out := make([]*Message, 0, len(msgs))
	for _, gm := range msgs {
		name := systemSenderName
		if !gm.SystemMessage && gm.SenderID != nil {
			n, ok := names[*gm.SenderID]
			if !ok {
				n = s.userName(ctx, *gm.SenderID)
				names[*gm.SenderID] = n
			}
			name = n
		}
		out = append(out, &Message{GroupMessage: *gm, SenderName: name})
	}
	return out, nil
}

// CheckMember fails unless userID currently belongs to roomID.
func (s *Service) CheckMember(ctx context.Context, roomID, userID int64) error {
	_, err := s.store.GetMembership(ctx, roomID, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.Unauthorized("user is not a member of this room")
	case err != nil:
		return apperr.Internal("loading membership", err)
	}
	return nil
}

func (s *Service) userName(ctx context.Context, userID int64) string {
	name, err := s.store.UserName(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("could not resolve user name")
		return "Someone"
	}
	return name
}

func (s *Service) activityTitle(ctx context.Context, activityID int64) string {
	title, err := s.store.ActivityTitle(ctx, activityID)
	if err != nil {
		s.log.Warn().Err(err).Int64("activity_id", activityID).Msg("could not resolve activity title")
		return ""
	}
	return title
}

func lookupErr(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return apperr.Internal(msg, err)
}
