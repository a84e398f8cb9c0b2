package stomp

import (
	"context"
	"encoding/json"

	"buddychat/internal/apperr"
	"buddychat/internal/chat"
	"buddychat/internal/group"
	"buddychat/internal/presence"
)

type messagePayload struct {
	SenderID  *int64 `json:"senderId"`
	Content   string `json:"content"`
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType"`
}

// AppRoutes is the destination table of the chat application.
func AppRoutes(chats *chat.Service, groups *group.Service, typing *presence.Signaler) (*Routes, error) {
	return NewRoutes(
		Route{Pattern: "/app/chat/{matchId}", Handler: matchMessage(chats)},
		Route{Pattern: "/app/chat/{matchId}/typing", Handler: matchTyping(typing)},
		Route{Pattern: "/app/group/{roomId}", Handler: groupMessage(groups)},
		Route{Pattern: "/app/group/{roomId}/typing", Handler: groupTyping(typing)},
	)
}

// decodeMessage also pins senderId to the authenticated user.
func decodeMessage(s *Session, body []byte) (*messagePayload, error) {
	var p messagePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperr.InvalidPayload("malformed JSON body")
	}
	if p.SenderID == nil {
		return nil, apperr.InvalidPayload("senderId is required")
	}
	if *p.SenderID != s.UserID {
		return nil, apperr.Unauthorized("senderId does not match the connected user")
	}
	return &p, nil
}

func matchMessage(chats *chat.Service) HandlerFunc {
	return func(ctx context.Context, s *Session, params Params, body []byte) error {
		p, err := decodeMessage(s, body)
		if err != nil {
			return err
		}
		_, err = chats.Send(ctx, chat.SendRequest{
			MatchID:   params["matchId"],
			SenderID:  s.UserID,
			Content:   p.Content,
			MediaURL:  p.MediaURL,
			MediaType: p.MediaType,
		})
		return err
	}
}

func groupMessage(groups *group.Service) HandlerFunc {
	return func(ctx context.Context, s *Session, params Params, body []byte) error {
		p, err := decodeMessage(s, body)
		if err != nil {
			return err
		}
		_, err = groups.Send(ctx, group.SendRequest{
			RoomID:   params["roomId"],
			SenderID: s.UserID,
			Content:  p.Content,
		})
		return err
	}
}

// Typing handlers never fail the frame; bad input is logged and dropped.
func decodeTyping(s *Session, body []byte) (presence.TypingPayload, bool) {
	var p presence.TypingPayload
	if err := json.Unmarshal(body, &p); err != nil {
		s.log.Debug().Err(err).Msg("malformed typing payload dropped")
		return p, false
	}
	if p.SenderID != nil && *p.SenderID != s.UserID {
		s.log.Warn().Int64("sender_id", *p.SenderID).Msg("typing for another user dropped")
		return p, false
	}
	return p, true
}

func matchTyping(typing *presence.Signaler) HandlerFunc {
	return func(_ context.Context, s *Session, params Params, body []byte) error {
		if p, ok := decodeTyping(s, body); ok {
			typing.MatchTyping(params["matchId"], p)
		}
		return nil
	}
}

func groupTyping(typing *presence.Signaler) HandlerFunc {
	return func(ctx context.Context, s *Session, params Params, body []byte) error {
		if p, ok := decodeTyping(s, body); ok {
			typing.GroupTyping(ctx, params["roomId"], p)
		}
		return nil
	}
}

// AppSubscriptions guards the broadcast topics: match topics need a
// participant, group topics a member, and a notification topic its owner.
func AppSubscriptions(chats *chat.Service, groups *group.Service) (*Routes, error) {
	return NewSubscriptions(
		Route{Pattern: "/topic/match/{matchId}", Handler: matchParticipant(chats)},
		Route{Pattern: "/topic/match/{matchId}/typing", Handler: matchParticipant(chats)},
		Route{Pattern: "/topic/group/{roomId}", Handler: roomMember(groups)},
		Route{Pattern: "/topic/group/{roomId}/typing", Handler: roomMember(groups)},
		Route{Pattern: "/topic/notifications/{userId}", Handler: notificationOwner},
	)
}

func matchParticipant(chats *chat.Service) HandlerFunc {
	return func(ctx context.Context, s *Session, params Params, _ []byte) error {
		return chats.CheckParticipant(ctx, params["matchId"], s.UserID)
	}
}

func roomMember(groups *group.Service) HandlerFunc {
	return func(ctx context.Context, s *Session, params Params, _ []byte) error {
		return groups.CheckMember(ctx, params["roomId"], s.UserID)
	}
}

func notificationOwner(_ context.Context, s *Session, params Params, _ []byte) error {
	if params["userId"] != s.UserID {
		return apperr.Unauthorized("cannot subscribe to another user's notifications")
	}
	return nil
}
