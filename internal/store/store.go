// Package store is the persistence gateway for matches, rooms, memberships,
// messages and notifications. Every mutating call is one transaction.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate")
)

// Directory resolves identifiers owned by other services (profiles, activities).
type Directory interface {
	UserName(ctx context.Context, userID int64) (string, error)
	ActivityTitle(ctx context.Context, activityID int64) (string, error)
	// ActivityCreator returns 0 when the activity has no recorded creator.
	ActivityCreator(ctx context.Context, activityID int64) (int64, error)
}

type MatchStore interface {
	// CreateMatch returns the existing match for the unordered pair when one
	// exists; created reports whether a new row was written.
	CreateMatch(ctx context.Context, user1, user2 int64, score *float64) (m *Match, created bool, err error)
	GetMatch(ctx context.Context, matchID int64) (*Match, error)
	ListActiveMatches(ctx context.Context, userID int64) ([]*Match, error)
	SetMatchStatus(ctx context.Context, matchID int64, status MatchStatus) error

	// AppendDirectMessage assigns ID and Timestamp (strictly increasing within
	// the match) and moves the match's LastMessageAt to it.
	AppendDirectMessage(ctx context.Context, msg *DirectMessage) error
	ListDirectMessages(ctx context.Context, matchID int64) ([]*DirectMessage, error)
	// MarkDirectMessagesRead flips every unread message not sent by readerID.
	MarkDirectMessagesRead(ctx context.Context, matchID, readerID int64, at time.Time) (int, error)
	CountUnread(ctx context.Context, matchID, userID int64) (int, error)
}

type RoomStore interface {
	// CreateRoom writes the room, the owner membership and the announcement
	// together. ErrDuplicate when the activity already has a room.
	CreateRoom(ctx context.Context, activityID, ownerID int64, announcement string) (*Room, error)
	GetRoom(ctx context.Context, roomID int64) (*Room, error)
	GetRoomByActivity(ctx context.Context, activityID int64) (*Room, error)
	DeleteRoomByActivity(ctx context.Context, activityID int64) error

	// AddMember is insert-or-ignore on (room, user). The announcement is only
	// written when a membership was actually created.
	AddMember(ctx context.Context, roomID, userID int64, announcement string) (added bool, err error)
	// RemoveMember returns ErrNotFound when there is no membership.
	RemoveMember(ctx context.Context, roomID, userID int64, announcement string) error
	GetMembership(ctx context.Context, roomID, userID int64) (*Membership, error)
	ListMembers(ctx context.Context, roomID int64) ([]*Membership, error)
	ListMembershipsForUser(ctx context.Context, userID int64) ([]*Membership, error)

	AppendGroupMessage(ctx context.Context, msg *GroupMessage) error
	ListGroupMessages(ctx context.Context, roomID int64) ([]*GroupMessage, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id int64) (*Notification, error)
	// ListNotifications is newest first.
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool) ([]*Notification, error)
	CountUnreadNotifications(ctx context.Context, userID int64) (int, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) (int, error)
	DeleteNotification(ctx context.Context, id int64) error
	DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type Store interface {
	Directory
	MatchStore
	RoomStore
	NotificationStore
}

// orderedPair normalises an unordered user pair.
func orderedPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
