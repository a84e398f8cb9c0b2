package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozen(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestCreateMatchUnorderedPair(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	m1, created, err := s.CreateMatch(ctx, 1, 2, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, MatchActive, m1.Status)

	m2, created, err := s.CreateMatch(ctx, 2, 1, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m1.ID, m2.ID)
}

func TestDirectMessageTimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.SetClock(frozen(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
	m, _, _ := s.CreateMatch(ctx, 1, 2, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendDirectMessage(ctx, &DirectMessage{MatchID: m.ID, SenderID: 1, Content: "x"}))
	}
	msgs, err := s.ListDirectMessages(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].Timestamp.After(msgs[i-1].Timestamp))
	}

	got, _ := s.GetMatch(ctx, m.ID)
	require.NotNil(t, got.LastMessageAt)
	assert.Equal(t, msgs[2].Timestamp, *got.LastMessageAt)
}

func TestAppendDirectMessageUnknownMatch(t *testing.T) {
	err := NewMemory().AppendDirectMessage(context.Background(), &DirectMessage{MatchID: 99, SenderID: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkReadOnlyOtherSender(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	m, _, _ := s.CreateMatch(ctx, 1, 2, nil)
	for _, sender := range []int64{1, 1, 2} {
		require.NoError(t, s.AppendDirectMessage(ctx, &DirectMessage{MatchID: m.ID, SenderID: sender, Content: "x"}))
	}

	n, err := s.CountUnread(ctx, m.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	flipped, err := s.MarkDirectMessagesRead(ctx, m.ID, 2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, flipped)

	n, _ = s.CountUnread(ctx, m.ID, 2)
	assert.Zero(t, n)
	n, _ = s.CountUnread(ctx, m.ID, 1)
	assert.Equal(t, 1, n)
}

func TestCreateRoomOncePerActivity(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	room, err := s.CreateRoom(ctx, 10, 1, "Ann created this group.")
	require.NoError(t, err)

	_, err = s.CreateRoom(ctx, 10, 2, "Bob created this group.")
	assert.ErrorIs(t, err, ErrDuplicate)

	members, _ := s.ListMembers(ctx, room.ID)
	require.Len(t, members, 1)
	assert.Equal(t, RoleOwner, members[0].Role)

	msgs, _ := s.ListGroupMessages(ctx, room.ID)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].SystemMessage)
	assert.Nil(t, msgs[0].SenderID)
}

func TestAddMemberConcurrentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	room, _ := s.CreateRoom(ctx, 10, 1, "created")

	var wg sync.WaitGroup
	var mu sync.Mutex
	addedCount := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := s.AddMember(ctx, room.ID, 2, "joined")
			assert.NoError(t, err)
			if added {
				mu.Lock()
				addedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, addedCount)
	members, _ := s.ListMembers(ctx, room.ID)
	assert.Len(t, members, 2)
	msgs, _ := s.ListGroupMessages(ctx, room.ID)
	assert.Len(t, msgs, 2)
}

func TestRemoveMemberMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	room, _ := s.CreateRoom(ctx, 10, 1, "created")

	err := s.RemoveMember(ctx, room.ID, 5, "left")
	assert.ErrorIs(t, err, ErrNotFound)
	msgs, _ := s.ListGroupMessages(ctx, room.ID)
	assert.Len(t, msgs, 1)
}

func TestDeleteRoomCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	room, _ := s.CreateRoom(ctx, 10, 1, "created")
	_, _ = s.AddMember(ctx, room.ID, 2, "joined")

	require.NoError(t, s.DeleteRoomByActivity(ctx, 10))

	_, err := s.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	mine, _ := s.ListMembershipsForUser(ctx, 2)
	assert.Empty(t, mine)
	msgs, _ := s.ListGroupMessages(ctx, room.ID)
	assert.Empty(t, msgs)
}

func TestMembershipsForUserNewestRoomFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	r1, _ := s.CreateRoom(ctx, 10, 1, "a")
	r2, _ := s.CreateRoom(ctx, 11, 1, "b")

	mine, err := s.ListMembershipsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, r2.ID, mine[0].RoomID)
	assert.Equal(t, r1.ID, mine[1].RoomID)
}

func TestNotificationsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := &Notification{UserID: 1, Type: NotifyMessage, Title: "old", CreatedAt: base}
	fresh := &Notification{UserID: 1, Type: NotifyMatch, Title: "fresh", CreatedAt: base.Add(48 * time.Hour)}
	require.NoError(t, s.CreateNotification(ctx, old))
	require.NoError(t, s.CreateNotification(ctx, fresh))
	require.NoError(t, s.CreateNotification(ctx, &Notification{UserID: 2, Title: "other", CreatedAt: base}))

	list, _ := s.ListNotifications(ctx, 1, false)
	require.Len(t, list, 2)
	assert.Equal(t, "fresh", list[0].Title)

	require.NoError(t, s.MarkNotificationRead(ctx, fresh.ID))
	unread, _ := s.ListNotifications(ctx, 1, true)
	require.Len(t, unread, 1)
	assert.Equal(t, old.ID, unread[0].ID)

	n, _ := s.MarkAllNotificationsRead(ctx, 1)
	assert.Equal(t, 1, n)
	c, _ := s.CountUnreadNotifications(ctx, 1)
	assert.Zero(t, c)

	deleted, _ := s.DeleteNotificationsBefore(ctx, base.Add(time.Hour))
	assert.Equal(t, 2, deleted)
	assert.ErrorIs(t, s.DeleteNotification(ctx, old.ID), ErrNotFound)
	require.NoError(t, s.DeleteNotification(ctx, fresh.ID))
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.PutUser(1, "Ann")
	s.PutActivity(10, "Hiking", 1)
	s.PutActivity(11, "Imported", 0)

	name, err := s.UserName(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ann", name)
	_, err = s.UserName(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	title, err := s.ActivityTitle(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Hiking", title)

	creator, err := s.ActivityCreator(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), creator)
	creator, err = s.ActivityCreator(ctx, 11)
	require.NoError(t, err)
	assert.Zero(t, creator)
	_, err = s.ActivityCreator(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
