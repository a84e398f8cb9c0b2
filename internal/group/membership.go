package group

import (
	"context"
	"errors"

	"buddychat/internal/apperr"
	"buddychat/internal/store"
)

// CreateRoom opens the chat room of an activity with ownerID as its only
// OWNER. One room per activity, and only the activity's creator may open it.
func (s *Service) CreateRoom(ctx context.Context, activityID, ownerID int64) (*RoomInfo, error) {
	title, err := s.store.ActivityTitle(ctx, activityID)
	if err != nil {
		return nil, lookupErr(err, "activity not found")
	}
	owner, err := s.store.UserName(ctx, ownerID)
	if err != nil {
		return nil, lookupErr(err, "user not found")
	}
	if err := s.requireCreator(ctx, activityID, ownerID); err != nil {
		return nil, err
	}

	room, err := s.store.CreateRoom(ctx, activityID, ownerID, owner+" created this group.")
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return nil, apperr.AlreadyExists("activity already has a chat room")
	case err != nil:
		return nil, lookupErr(err, "activity not found")
	}
	s.log.Info().Int64("room_id", room.ID).Int64("activity_id", activityID).Int64("owner_id", ownerID).Msg("room created")
	return &RoomInfo{RoomID: room.ID, ActivityID: activityID, ActivityTitle: title, CreatedAt: room.CreatedAt}, nil
}

// Join adds userID as a MEMBER. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, roomID, userID int64) error {
	name, err := s.store.UserName(ctx, userID)
	if err != nil {
		return lookupErr(err, "user not found")
	}
	added, err := s.store.AddMember(ctx, roomID, userID, name+" has joined the chat.")
	if err != nil {
		return lookupErr(err, "room not found")
	}
	if added {
		s.log.Info().Int64("room_id", roomID).Int64("user_id", userID).Msg("member joined")
	}
	return nil
}

// JoinByActivity joins the room bound to activityID.
func (s *Service) JoinByActivity(ctx context.Context, activityID, userID int64) (*RoomInfo, error) {
	info, err := s.RoomByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if err := s.Join(ctx, info.RoomID, userID); err != nil {
		return nil, err
	}
	return info, nil
}

// Leave removes the membership. An owner leaving leaves the room ownerless.
func (s *Service) Leave(ctx context.Context, roomID, userID int64) error {
	if _, err := s.store.GetMembership(ctx, roomID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotAMember("user is not a member of this room")
		}
		return apperr.Internal("loading membership", err)
	}
	name := s.userName(ctx, userID)
	if err := s.store.RemoveMember(ctx, roomID, userID, name+" left the chat."); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotAMember("user is not a member of this room")
		}
		return apperr.Internal("removing membership", err)
	}
	s.log.Info().Int64("room_id", roomID).Int64("user_id", userID).Msg("member left")
	return nil
}

// ListRoomsForUser returns the user's rooms, newest room first.
func (s *Service) ListRoomsForUser(ctx context.Context, userID int64) ([]*RoomSummary, error) {
	memberships, err := s.store.ListMembershipsForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("listing rooms", err)
	}
	out := make([]*RoomSummary, 0, len(memberships))
	for _, m := range memberships {
		room, err := s.store.GetRoom(ctx, m.RoomID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, apperr.Internal("loading room", err)
		}
		out = append(out, &RoomSummary{
			RoomID:        room.ID,
			ActivityID:    room.ActivityID,
			ActivityTitle: s.activityTitle(ctx, room.ActivityID),
			Role:          m.Role,
			JoinedAt:      m.JoinedAt,
		})
	}
	return out, nil
}

func (s *Service) RoomByActivity(ctx context.Context, activityID int64) (*RoomInfo, error) {
	room, err := s.store.GetRoomByActivity(ctx, activityID)
	if err != nil {
		return nil, lookupErr(err, "no chat room for this activity")
	}
	return &RoomInfo{
		RoomID:        room.ID,
		ActivityID:    room.ActivityID,
		ActivityTitle: s.activityTitle(ctx, room.ActivityID),
		CreatedAt:     room.CreatedAt,
	}, nil
}

// DeleteRoomForActivity drops the room with its memberships and messages.
// Only the activity's creator may do so.
func (s *Service) DeleteRoomForActivity(ctx context.Context, activityID, actorID int64) error {
	if err := s.requireCreator(ctx, activityID, actorID); err != nil {
		return err
	}
	if err := s.store.DeleteRoomByActivity(ctx, activityID); err != nil {
		return lookupErr(err, "no chat room for this activity")
	}
	s.log.Info().Int64("activity_id", activityID).Int64("actor_id", actorID).Msg("room deleted")
	return nil
}

// requireCreator fails unless userID created the activity. Activities without
// a recorded creator are managed by nobody.
func (s *Service) requireCreator(ctx context.Context, activityID, userID int64) error {
	creator, err := s.store.ActivityCreator(ctx, activityID)
	if err != nil {
		return lookupErr(err, "activity not found")
	}
	if creator == 0 || creator != userID {
		return apperr.Unauthorized("only the activity creator can manage its chat room")
	}
	return nil
}

// Members lists current memberships with their roles.
func (s *Service) Members(ctx context.Context, roomID int64) ([]*MemberSummary, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, lookupErr(err, "room not found")
	}
	members, err := s.store.ListMembers(ctx, roomID)
	if err != nil {
		return nil, apperr.Internal("listing members", err)
	}
	out := make([]*MemberSummary, 0, len(members))
	for _, m := range members {
		out = append(out, &MemberSummary{
			UserID:   m.UserID,
			Name:     s.userName(ctx, m.UserID),
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}
	return out, nil
}
