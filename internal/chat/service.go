package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"buddychat/internal/apperr"
	"buddychat/internal/notification"
	"buddychat/internal/pubsub"
	"buddychat/internal/store"
)

const maxContentRunes = 4000

// Notifier takes notification events off the send path.
type Notifier interface {
	Enqueue(ev notification.Event)
}

type Store interface {
	store.Directory
	store.MatchStore
}

// Service is the one-to-one match chat: sending, history with read receipts,
// unread counts, and the match records the chat hangs off.
type Service struct {
	store    Store
	router   pubsub.Router
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(s Store, router pubsub.Router, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		store:    s,
		router:   router,
		notifier: notifier,
		log:      log.With().Str("component", "chat").Logger(),
		now:      time.Now,
	}
}

func validateContent(content, mediaURL string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && mediaURL == "" {
		return "", apperr.InvalidPayload("content is required")
	}
	if utf8.RuneCountInString(content) > maxContentRunes {
		return "", apperr.InvalidPayload("content is too long")
	}
	return content, nil
}

// participantMatch loads matchID and checks userID belongs to it.
func (s *Service) participantMatch(ctx context.Context, matchID, userID int64) (*store.Match, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("match not found")
	}
	if err != nil {
		return nil, apperr.Internal("loading match", err)
	}
	if !m.Has(userID) {
		return nil, apperr.Unauthorized("user is not part of this match")
	}
	return m, nil
}

// CheckParticipant fails unless userID is one of the match's two users.
func (s *Service) CheckParticipant(ctx context.Context, matchID, userID int64) error {
	_, err := s.participantMatch(ctx, matchID, userID)
	return err
}

func (s *Service) userName(ctx context.Context, userID int64) string {
	name, err := s.store.UserName(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("could not resolve user name")
		return "Someone"
	}
	return name
}

// Send stores the message, then broadcasts it to the match topic and
// notifies the other participant. Nothing is broadcast unless the write
// succeeded.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Message, error) {
	content, err := validateContent(req.Content, req.MediaURL)
	if err != nil {
		return nil, err
	}
	m, err := s.participantMatch(ctx, req.MatchID, req.SenderID)
	if err != nil {
		return nil, err
	}

	dm := &store.DirectMessage{
		MatchID:   m.ID,
		SenderID:  req.SenderID,
		Content:   content,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	}
	if err := s.store.AppendDirectMessage(ctx, dm); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("match not found")
		}
		return nil, apperr.Internal("saving message", err)
	}

	msg := &Message{DirectMessage: *dm, SenderName: s.userName(ctx, req.SenderID)}
	s.log.Info().Int64("match_id", m.ID).Int64("sender_id", req.SenderID).Int64("message_id", dm.ID).Msg("message saved")

	if err := s.router.Publish(pubsub.MatchTopic(m.ID), msg); err != nil {
		s.log.Error().Err(err).Int64("match_id", m.ID).Msg("broadcast failed")
	}
	s.notifier.Enqueue(notification.DirectMessageEvent(m.Other(req.SenderID), m.ID, msg.SenderName))
	return msg, nil
}

// History returns the match's messages oldest first and marks everything the
// requester received as read.
func (s *Service) History(ctx context.Context, matchID, requesterID int64) ([]*Message, error) {
	m, err := s.participantMatch(ctx, matchID, requesterID)
	if err != nil {
		return nil, err
	}
	n, err := s.store.MarkDirectMessagesRead(ctx, m.ID, requesterID, s.now())
	if err != nil {
		return nil, apperr.Internal("marking messages read", err)
	}
	msgs, err := s.store.ListDirectMessages(ctx, m.ID)
	if err != nil {
		return nil, apperr.Internal("loading messages", err)
	}
	s.log.Debug().Int64("match_id", m.ID).Int("count", len(msgs)).Int("marked_read", n).Msg("history loaded")

	names := map[int64]string{
		m.User1ID: s.userName(ctx, m.User1ID),
		m.User2ID: s.userName(ctx, m.User2ID),
	}
	out := make([]*Message, 0, len(msgs))
	for _, dm := range msgs {
		out = append(out, &Message{DirectMessage: *dm, SenderName: names[dm.SenderID]})
	}
	return out, nil
}

// UnreadCount counts messages userID has not read yet.
func (s *Service) UnreadCount(ctx context.Context, matchID, userID int64) (int, error) {
	if _, err := s.participantMatch(ctx, matchID, userID); err != nil {
		return 0, err
	}
	n, err := s.store.CountUnread(ctx, matchID, userID)
	if err != nil {
		return 0, apperr.Internal("counting unread", err)
	}
	return n, nil
}

// RecordMatch is called once the like flow detects a mutual like. It is
// idempotent per pair; both users are notified only on creation.
func (s *Service) RecordMatch(ctx context.Context, user1, user2 int64, score *float64) (*store.Match, bool, error) {
	if user1 == user2 || user1 <= 0 || user2 <= 0 {
		return nil, false, apperr.InvalidPayload("a match needs two different users")
	}
	name1, err := s.store.UserName(ctx, user1)
	if err != nil {
		return nil, false, s.lookupErr(err, "user not found")
	}
	name2, err := s.store.UserName(ctx, user2)
	if err != nil {
		return nil, false, s.lookupErr(err, "user not found")
	}

	m, created, err := s.store.CreateMatch(ctx, user1, user2, score)
	if err != nil {
		return nil, false, s.lookupErr(err, "user not found")
	}
	if created {
		s.log.Info().Int64("match_id", m.ID).Int64("user1", user1).Int64("user2", user2).Msg("match created")
		s.notifier.Enqueue(notification.MatchEvent(user1, m.ID, name2))
		s.notifier.Enqueue(notification.MatchEvent(user2, m.ID, name1))
	}
	return m, created, nil
}

func (s *Service) lookupErr(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return apperr.Internal(msg, err)
}

// ListMatches returns the user's active matches, most recent activity first.
func (s *Service) ListMatches(ctx context.Context, userID int64) ([]*MatchSummary, error) {
	matches, err := s.store.ListActiveMatches(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("listing matches", err)
	}
	out := make([]*MatchSummary, 0, len(matches))
	for _, m := range matches {
		partner := m.Other(userID)
		unread, err := s.store.CountUnread(ctx, m.ID, userID)
		if err != nil {
			return nil, apperr.Internal("counting unread", err)
		}
		out = append(out, &MatchSummary{
			Match:       m,
			PartnerID:   partner,
			PartnerName: s.userName(ctx, partner),
			UnreadCount: unread,
		})
	}
	return out, nil
}

// SetStatus lets a participant block or deactivate a match.
func (s *Service) SetStatus(ctx context.Context, matchID, actorID int64, status store.MatchStatus) error {
	if !status.Valid() {
		return apperr.InvalidPayload("unknown match status")
	}
	if _, err := s.participantMatch(ctx, matchID, actorID); err != nil {
		return err
	}
	if err := s.store.SetMatchStatus(ctx, matchID, status); err != nil {
		return s.lookupErr(err, "match not found")
	}
	return nil
}
