package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type pairKey struct{ lo, hi int64 }

type memberKey struct{ room, user int64 }

// Memory is an in-process Store. It backs tests and single-node runs without
// DB_DSN. A single mutex makes each method atomic, which gives the same
// all-or-nothing behaviour as the SQL transactions in Postgres.
type Memory struct {
	mu  sync.Mutex
	now func() time.Time

	seq int64

	users      map[int64]string
	activities map[int64]activity

	matches     map[int64]*Match
	matchByPair map[pairKey]int64
	directMsgs  map[int64][]*DirectMessage

	rooms          map[int64]*Room
	roomByActivity map[int64]int64
	members        map[memberKey]*Membership
	groupMsgs      map[int64][]*GroupMessage
	roomClock      map[int64]time.Time

	notifications map[int64]*Notification
}

func NewMemory() *Memory {
	return &Memory{
		now:            time.Now,
		users:          make(map[int64]string),
		activities:     make(map[int64]activity),
		matches:        make(map[int64]*Match),
		matchByPair:    make(map[pairKey]int64),
		directMsgs:     make(map[int64][]*DirectMessage),
		rooms:          make(map[int64]*Room),
		roomByActivity: make(map[int64]int64),
		members:        make(map[memberKey]*Membership),
		groupMsgs:      make(map[int64][]*GroupMessage),
		roomClock:      make(map[int64]time.Time),
		notifications:  make(map[int64]*Notification),
	}
}

// SetClock replaces the time source. Not safe to call concurrently with use.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

func (m *Memory) PutUser(id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = name
}

type activity struct {
	title   string
	creator int64
}

func (m *Memory) PutActivity(id int64, title string, creatorID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[id] = activity{title: title, creator: creatorID}
}

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

// tick returns a timestamp strictly after last, at the microsecond precision
// Postgres stores.
func (m *Memory) tick(last time.Time) time.Time {
	ts := m.now().Truncate(time.Microsecond)
	if !ts.After(last) {
		ts = last.Add(time.Microsecond)
	}
	return ts
}

// ---- Directory ----

func (m *Memory) UserName(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.users[userID]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}

func (m *Memory) ActivityTitle(_ context.Context, activityID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[activityID]
	if !ok {
		return "", ErrNotFound
	}
	return a.title, nil
}

func (m *Memory) ActivityCreator(_ context.Context, activityID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[activityID]
	if !ok {
		return 0, ErrNotFound
	}
	return a.creator, nil
}

// ---- Matches ----

func (m *Memory) CreateMatch(_ context.Context, user1, user2 int64, score *float64) (*Match, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lo, hi := orderedPair(user1, user2)
	if id, ok := m.matchByPair[pairKey{lo, hi}]; ok {
		cp := *m.matches[id]
		return &cp, false, nil
	}
	match := &Match{
		ID:                 m.nextID(),
		User1ID:            user1,
		User2ID:            user2,
		Status:             MatchActive,
		CreatedAt:          m.now(),
		CompatibilityScore: score,
	}
	m.matches[match.ID] = match
	m.matchByPair[pairKey{lo, hi}] = match.ID
	cp := *match
	return &cp, true, nil
}

func (m *Memory) GetMatch(_ context.Context, matchID int64) (*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *match
	return &cp, nil
}

func (m *Memory) ListActiveMatches(_ context.Context, userID int64) ([]*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Match
	for _, match := range m.matches {
		if match.Status == MatchActive && match.Has(userID) {
			cp := *match
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := lastActivity(out[i]), lastActivity(out[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func lastActivity(m *Match) time.Time {
	if m.LastMessageAt != nil {
		return *m.LastMessageAt
	}
	return m.CreatedAt
}

func (m *Memory) SetMatchStatus(_ context.Context, matchID int64, status MatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[matchID]
	if !ok {
		return ErrNotFound
	}
	match.Status = status
	return nil
}

func (m *Memory) AppendDirectMessage(_ context.Context, msg *DirectMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[msg.MatchID]
	if !ok {
		return ErrNotFound
	}
	var last time.Time
	if match.LastMessageAt != nil {
		last = *match.LastMessageAt
	}
	msg.ID = m.nextID()
	msg.Timestamp = m.tick(last)
	msg.IsRead = false
	msg.ReadAt = nil

	ts := msg.Timestamp
	match.LastMessageAt = &ts
	cp := *msg
	m.directMsgs[msg.MatchID] = append(m.directMsgs[msg.MatchID], &cp)
	return nil
}

func (m *Memory) ListDirectMessages(_ context.Context, matchID int64) ([]*DirectMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Appends are already in (timestamp, id) order.
	msgs := m.directMsgs[matchID]
	out := make([]*DirectMessage, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) MarkDirectMessagesRead(_ context.Context, matchID, readerID int64, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.directMsgs[matchID] {
		if msg.SenderID != readerID && !msg.IsRead {
			readAt := at
			msg.IsRead = true
			msg.ReadAt = &readAt
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountUnread(_ context.Context, matchID, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.directMsgs[matchID] {
		if msg.SenderID != userID && !msg.IsRead {
			n++
		}
	}
	return n, nil
}

// ---- Rooms ----

func (m *Memory) CreateRoom(_ context.Context, activityID, ownerID int64, announcement string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roomByActivity[activityID]; ok {
		return nil, ErrDuplicate
	}
	room := &Room{ID: m.nextID(), ActivityID: activityID, CreatedAt: m.now()}
	m.rooms[room.ID] = room
	m.roomByActivity[activityID] = room.ID
	m.members[memberKey{room.ID, ownerID}] = &Membership{
		ID:       m.nextID(),
		RoomID:   room.ID,
		UserID:   ownerID,
		Role:     RoleOwner,
		JoinedAt: room.CreatedAt,
	}
	m.appendSystemLocked(room.ID, announcement)
	cp := *room
	return &cp, nil
}

func (m *Memory) GetRoom(_ context.Context, roomID int64) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (m *Memory) GetRoomByActivity(_ context.Context, activityID int64) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.roomByActivity[activityID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.rooms[id]
	return &cp, nil
}

func (m *Memory) DeleteRoomByActivity(_ context.Context, activityID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.roomByActivity[activityID]
	if !ok {
		return ErrNotFound
	}
	delete(m.roomByActivity, activityID)
	delete(m.rooms, id)
	delete(m.groupMsgs, id)
	delete(m.roomClock, id)
	for k := range m.members {
		if k.room == id {
			delete(m.members, k)
		}
	}
	return nil
}

func (m *Memory) AddMember(_ context.Context, roomID, userID int64, announcement string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return false, ErrNotFound
	}
	key := memberKey{roomID, userID}
	if _, ok := m.members[key]; ok {
		return false, nil
	}
	m.members[key] = &Membership{
		ID:       m.nextID(),
		RoomID:   roomID,
		UserID:   userID,
		Role:     RoleMember,
		JoinedAt: m.now(),
	}
	m.appendSystemLocked(roomID, announcement)
	return true, nil
}

func (m *Memory) RemoveMember(_ context.Context, roomID, userID int64, announcement string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey{roomID, userID}
	if _, ok := m.members[key]; !ok {
		return ErrNotFound
	}
	delete(m.members, key)
	m.appendSystemLocked(roomID, announcement)
	return nil
}

func (m *Memory) GetMembership(_ context.Context, roomID, userID int64) (*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberKey{roomID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *Memory) ListMembers(_ context.Context, roomID int64) ([]*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Membership
	for k, mem := range m.members {
		if k.room == roomID {
			cp := *mem
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListMembershipsForUser(_ context.Context, userID int64) ([]*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Membership
	for k, mem := range m.members {
		if k.user == userID {
			cp := *mem
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID > out[j].RoomID })
	return out, nil
}

func (m *Memory) AppendGroupMessage(_ context.Context, msg *GroupMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[msg.RoomID]; !ok {
		return ErrNotFound
	}
	m.appendLocked(msg)
	return nil
}

func (m *Memory) appendSystemLocked(roomID int64, content string) {
	m.appendLocked(&GroupMessage{RoomID: roomID, Content: content, SystemMessage: true})
}

func (m *Memory) appendLocked(msg *GroupMessage) {
	msg.ID = m.nextID()
	msg.Timestamp = m.tick(m.roomClock[msg.RoomID])
	m.roomClock[msg.RoomID] = msg.Timestamp
	cp := *msg
	m.groupMsgs[msg.RoomID] = append(m.groupMsgs[msg.RoomID], &cp)
}

func (m *Memory) ListGroupMessages(_ context.Context, roomID int64) ([]*GroupMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.groupMsgs[roomID]
	out := make([]*GroupMessage, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

// ---- Notifications ----

func (m *Memory) CreateNotification(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = m.nextID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *Memory) GetNotification(_ context.Context, id int64) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *Memory) ListNotifications(_ context.Context, userID int64, unreadOnly bool) ([]*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Notification
	for _, n := range m.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) CountUnreadNotifications(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			c++
		}
	}
	return c, nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (m *Memory) MarkAllNotificationsRead(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			c++
		}
	}
	return c, nil
}

func (m *Memory) DeleteNotification(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[id]; !ok {
		return ErrNotFound
	}
	delete(m.notifications, id)
	return nil
}

func (m *Memory) DeleteNotificationsBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := 0
	for id, n := range m.notifications {
		if n.CreatedAt.Before(cutoff) {
			delete(m.notifications, id)
			c++
		}
	}
	return c, nil
}

var _ Store = (*Memory)(nil)
