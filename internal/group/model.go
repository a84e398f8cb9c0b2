package group

import (
	"time"

	"buddychat/internal/store"
)

const systemSenderName = "System"

// RoomInfo is the public view of a room.
type RoomInfo struct {
	RoomID        int64     `json:"roomId"`
	ActivityID    int64     `json:"activityId"`
	ActivityTitle string    `json:"activityTitle"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RoomSummary is one entry of a user's room list.
type RoomSummary struct {
	RoomID        int64      `json:"roomId"`
	ActivityID    int64      `json:"activityId"`
	ActivityTitle string     `json:"activityTitle"`
	Role          store.Role `json:"role"`
	JoinedAt      time.Time  `json:"joinedAt"`
}

type MemberSummary struct {
	UserID   int64      `json:"userId"`
	Name     string     `json:"name"`
	Role     store.Role `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
}

// Message is a group message as clients see it.
type Message struct {
	store.GroupMessage
	SenderName string `json:"senderName"`
}

type SendRequest struct {
	RoomID   int64
	SenderID int64
	Content  string
}

type createRoomBody struct {
	ActivityID int64 `json:"activityId"`
}

type sendBody struct {
	Content string `json:"content"`
}
