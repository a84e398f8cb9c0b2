// Package presence carries the ephemeral signals: typing indicators and
// online status. Nothing here is persisted in the relational store.
package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"buddychat/internal/pubsub"
	"buddychat/internal/store"
)

// TypingPayload is the inbound body on the typing destinations.
type TypingPayload struct {
	SenderID *int64 `json:"senderId"`
	Typing   bool   `json:"typing"`
}

type MatchTypingEvent struct {
	MatchID   int64 `json:"matchId"`
	SenderID  int64 `json:"senderId"`
	Typing    bool  `json:"typing"`
	Timestamp int64 `json:"timestamp"`
}

type GroupTypingEvent struct {
	RoomID     int64  `json:"roomId"`
	SenderID   int64  `json:"senderId"`
	SenderName string `json:"senderName"`
	Typing     bool   `json:"typing"`
	Timestamp  int64  `json:"timestamp"`
}

// Signaler publishes typing indicators. It never returns an error: bad
// payloads are logged and dropped.
type Signaler struct {
	router pubsub.Router
	names  store.Directory
	log    zerolog.Logger
	now    func() time.Time
}

func NewSignaler(router pubsub.Router, names store.Directory, log zerolog.Logger) *Signaler {
	return &Signaler{
		router: router,
		names:  names,
		log:    log.With().Str("component", "typing").Logger(),
		now:    time.Now,
	}
}

func (s *Signaler) MatchTyping(matchID int64, p TypingPayload) {
	if p.SenderID == nil {
		s.log.Warn().Int64("match_id", matchID).Msg("typing payload without senderId dropped")
		return
	}
	ev := MatchTypingEvent{
		MatchID:   matchID,
		SenderID:  *p.SenderID,
		Typing:    p.Typing,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.router.Publish(pubsub.MatchTypingTopic(matchID), ev); err != nil {
		s.log.Warn().Err(err).Int64("match_id", matchID).Msg("typing publish failed")
	}
}

func (s *Signaler) GroupTyping(ctx context.Context, roomID int64, p TypingPayload) {
	if p.SenderID == nil {
		s.log.Warn().Int64("room_id", roomID).Msg("typing payload without senderId dropped")
		return
	}
	name, err := s.names.UserName(ctx, *p.SenderID)
	if err != nil {
		s.log.Debug().Err(err).Int64("user_id", *p.SenderID).Msg("typing sender name unresolved")
		name = "Someone"
	}
	ev := GroupTypingEvent{
		RoomID:     roomID,
		SenderID:   *p.SenderID,
		SenderName: name,
		Typing:     p.Typing,
		Timestamp:  s.now().UnixMilli(),
	}
	if err := s.router.Publish(pubsub.GroupTypingTopic(roomID), ev); err != nil {
		s.log.Warn().Err(err).Int64("room_id", roomID).Msg("typing publish failed")
	}
}
