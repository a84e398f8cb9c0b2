package store

import "time"

// Records reference users, activities, matches and rooms by id only; names
// are resolved through Directory at the edge that needs them.

type MatchStatus string

const (
	MatchActive   MatchStatus = "ACTIVE"
	MatchInactive MatchStatus = "INACTIVE"
	MatchBlocked  MatchStatus = "BLOCKED"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchActive, MatchInactive, MatchBlocked:
		return true
	}
	return false
}

type Match struct {
	ID                 int64       `json:"matchId"`
	User1ID            int64       `json:"user1Id"`
	User2ID            int64       `json:"user2Id"`
	Status             MatchStatus `json:"status"`
	CreatedAt          time.Time   `json:"createdAt"`
	LastMessageAt      *time.Time  `json:"lastMessageAt,omitempty"`
	CompatibilityScore *float64    `json:"compatibilityScore,omitempty"`
}

// Has reports whether userID is one of the two participants.
func (m *Match) Has(userID int64) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// Other returns the participant that is not userID.
func (m *Match) Other(userID int64) int64 {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}

type DirectMessage struct {
	ID        int64      `json:"messageId"`
	MatchID   int64      `json:"matchId"`
	SenderID  int64      `json:"senderId"`
	Content   string     `json:"content"`
	MediaURL  string     `json:"mediaUrl,omitempty"`
	MediaType string     `json:"mediaType,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	IsRead    bool       `json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

type Room struct {
	ID         int64     `json:"roomId"`
	ActivityID int64     `json:"activityId"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleMember Role = "MEMBER"
)

type Membership struct {
	ID       int64     `json:"membershipId"`
	RoomID   int64     `json:"roomId"`
	UserID   int64     `json:"userId"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// GroupMessage with a nil SenderID is a system announcement.
type GroupMessage struct {
	ID            int64     `json:"id"`
	RoomID        int64     `json:"roomId"`
	SenderID      *int64    `json:"senderId"`
	Content       string    `json:"content"`
	SystemMessage bool      `json:"systemMessage"`
	Timestamp     time.Time `json:"timestamp"`
}

type NotificationType string

const (
	NotifyMatch          NotificationType = "MATCH"
	NotifyMessage        NotificationType = "MESSAGE"
	NotifyActivityJoined NotificationType = "ACTIVITY_JOINED"
	NotifySystem         NotificationType = "SYSTEM"
)

type Notification struct {
	ID          int64            `json:"notiId"`
	UserID      int64            `json:"userId"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	RelatedID   int64            `json:"relatedId"`
	RelatedType string           `json:"relatedType"`
	IsRead      bool             `json:"isRead"`
	CreatedAt   time.Time        `json:"createdAt"`
}
