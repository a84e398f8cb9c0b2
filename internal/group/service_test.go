package group

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddychat/internal/apperr"
	"buddychat/internal/notification"
	"buddychat/internal/pubsub"
	"buddychat/internal/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Enqueue(ev notification.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) all() []notification.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Event(nil), n.events...)
}

const (
	u1       int64 = 1
	u2       int64 = 2
	u3       int64 = 3
	activity int64 = 123
)

type fixture struct {
	svc      *Service
	mem      *store.Memory
	router   *pubsub.Recorder
	notifier *recordingNotifier
	room     *RoomInfo
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	mem.PutUser(u1, "U1")
	mem.PutUser(u2, "U2")
	mem.PutUser(u3, "U3")
	mem.PutActivity(activity, "Sunday hike", u1)
	mem.PutActivity(456, "Board games", u2)
	mem.PutActivity(789, "Open mic", 0)

	f := &fixture{mem: mem, router: &pubsub.Recorder{}, notifier: &recordingNotifier{}}
	f.svc = NewService(mem, f.router, f.notifier, zerolog.Nop())

	room, err := f.svc.CreateRoom(context.Background(), activity, u1)
	require.NoError(t, err)
	f.room = room
	return f
}

func contents(msgs []*Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestCreateRoom(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	assert.Equal(t, "Sunday hike", f.room.ActivityTitle)

	members, err := f.svc.Members(ctx, f.room.RoomID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, store.RoleOwner, members[0].Role)
	assert.Equal(t, "U1", members[0].Name)

	hist, err := f.svc.History(ctx, f.room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"U1 created this group."}, contents(hist))
	assert.True(t, hist[0].SystemMessage)
	assert.Equal(t, "System", hist[0].SenderName)

	_, err = f.svc.CreateRoom(ctx, activity, u1)
	assert.True(t, apperr.Is(err, apperr.KindAlreadyExists))
	_, err = f.svc.CreateRoom(ctx, 999, u1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.CreateRoom(ctx, 456, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCreateRoomRequiresActivityCreator(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateRoom(ctx, 456, u3)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = f.svc.CreateRoom(ctx, 789, u1)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = f.svc.RoomByActivity(ctx, 456)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	room, err := f.svc.CreateRoom(ctx, 456, u2)
	require.NoError(t, err)
	members, err := f.svc.Members(ctx, room.RoomID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, u2, members[0].UserID)
}

func TestJoinIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Join(ctx, f.room.RoomID, u2))
	require.NoError(t, f.svc.Join(ctx, f.room.RoomID, u2))

	members, _ := f.svc.Members(ctx, f.room.RoomID)
	require.Len(t, members, 2)
	assert.Equal(t, store.RoleMember, members[1].Role)

	hist, _ := f.svc.History(ctx, f.room.RoomID)
	assert.Equal(t, []string{"U1 created this group.", "U2 has joined the chat."}, contents(hist))

	assert.True(t, apperr.Is(f.svc.Join(ctx, 999, u2), apperr.KindNotFound))
}

func TestConcurrentJoinsKeepOneMembership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.Join(ctx, f.room.RoomID, u2))
		}()
	}
	wg.Wait()

	members, _ := f.svc.Members(ctx, f.room.RoomID)
	assert.Len(t, members, 2)
	hist, _ := f.svc.History(ctx, f.room.RoomID)
	assert.Len(t, hist, 2)
}

func TestOwnerCountNeverGrows(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Join(ctx, f.room.RoomID, u2))
	require.NoError(t, f.svc.Join(ctx, f.room.RoomID, u3))
	require.NoError(t, f.svc.Leave(ctx, f.room.RoomID, u1))

	members, _ := f.svc.Members(ctx, f.room.RoomID)
	for _, m := range members {
		assert.Equal(t, store.RoleMember, m.Role)
	}
}

func TestLeave(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.svc.Leave(ctx, f.room.RoomID, u2)
	assert.True(t, apperr.Is(err, apperr.KindNotAMember))
	hist, _ := f.svc.History(ctx, f.room.RoomID)
	assert.Len(t, hist, 1)

	require.NoError(t, f.svc.Join(ctx, f.room.RoomID, u2))
	require.NoError(t, f.svc.Leave(ctx, f.room.RoomID, u2))
	assert.True(t, apperr.Is(f.svc.CheckMember(ctx, f.room.RoomID, u2), apperr.KindUnauthorized))

	hist, _ = f.svc.History(ctx, f.room.RoomID)
	assert.Equal(t, "U2 left the chat.", hist[len(hist)-1].Content)
}

func TestSendNotifiesOtherMembersOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Join(ctx, f.room.RoomID, u2))

	msg, err := f.svc.Send(ctx, SendRequest{RoomID: f.room.RoomID, SenderID: u2, Content: "yo"})
	require.NoError(t, err)
	assert.False(t, msg.SystemMessage)
	require.NotNil(t, msg.SenderID)
	assert.Equal(t, u2, *msg.SenderID)
	assert.Equal(t, "U2", msg.SenderName)

	pub := f.router.On(pubsub.GroupTopic(f.room.RoomID))
	require.Len(t, pub, 1)
	assert.Equal(t, "yo", pub[0].(*Message).Content)

	events := f.notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, u1, events[0].UserID)
	assert.Equal(t, "U2 sent a message in Sunday hike", events[0].Message)
	assert.Equal(t, notification.RelatedGroup, events[0].RelatedType)

	hist, _ := f.svc.History(ctx, f.room.RoomID)
	assert.Equal(t, "U2", hist[len(hist)-1].SenderName)
}

func TestSendRejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, SendRequest{RoomID: 999, SenderID: u1, Content: "hi"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.Send(ctx, SendRequest{RoomID: f.room.RoomID, SenderID: u3, Content: "hi"})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = f.svc.Send(ctx, SendRequest{RoomID: f.room.RoomID, SenderID: u1, Content: " "})
	assert.True(t, apperr.Is(err, apperr.KindInvalidPayload))

	assert.Empty(t, f.router.All())
	assert.Empty(t, f.notifier.all())
}

func TestListRoomsForUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other, err := f.svc.CreateRoom(ctx, 456, u2)
	require.NoError(t, err)

	_, err = f.svc.JoinByActivity(ctx, activity, u2)
	require.NoError(t, err)

	rooms, err := f.svc.ListRoomsForUser(ctx, u2)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, other.RoomID, rooms[0].RoomID)
	assert.Equal(t, store.RoleOwner, rooms[0].Role)
	assert.Equal(t, "Board games", rooms[0].ActivityTitle)
	assert.Equal(t, f.room.RoomID, rooms[1].RoomID)

	rooms, _ = f.svc.ListRoomsForUser(ctx, u3)
	assert.Empty(t, rooms)
}

func TestDeleteRoomForActivity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	assert.True(t, apperr.Is(f.svc.DeleteRoomForActivity(ctx, activity, u2), apperr.KindUnauthorized))
	_, err := f.svc.RoomByActivity(ctx, activity)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteRoomForActivity(ctx, activity, u1))

	_, err = f.svc.RoomByActivity(ctx, activity)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.History(ctx, f.room.RoomID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	rooms, _ := f.svc.ListRoomsForUser(ctx, u1)
	assert.Empty(t, rooms)

	assert.True(t, apperr.Is(f.svc.DeleteRoomForActivity(ctx, activity, u1), apperr.KindNotFound))
}
