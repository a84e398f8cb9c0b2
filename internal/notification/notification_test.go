package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddychat/internal/apperr"
	"buddychat/internal/middleware"
	"buddychat/internal/pubsub"
	"buddychat/internal/store"
)

func newService(t *testing.T) (*Service, *store.Memory, *pubsub.Recorder) {
	t.Helper()
	mem := store.NewMemory()
	rec := &pubsub.Recorder{}
	return NewService(mem, rec, zerolog.Nop()), mem, rec
}

func TestNotifyPersistsAndPublishes(t *testing.T) {
	svc, mem, rec := newService(t)
	ctx := context.Background()

	n, err := svc.Notify(ctx, DirectMessageEvent(7, 3, "Ann"))
	require.NoError(t, err)
	assert.Equal(t, "Ann sent you a message", n.Message)
	assert.Equal(t, RelatedMatch, n.RelatedType)

	stored, err := mem.ListNotifications(ctx, 7, false)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	pushed := rec.On(pubsub.NotificationTopic(7))
	require.Len(t, pushed, 1)
	assert.Equal(t, n.ID, pushed[0].(*store.Notification).ID)
}

func TestMarkReadChecksOwner(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	n, err := svc.Notify(ctx, MatchEvent(7, 1, "Bob"))
	require.NoError(t, err)

	_, err = svc.MarkRead(ctx, n.ID, 8)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = svc.MarkRead(ctx, 999, 7)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	got, err := svc.MarkRead(ctx, n.ID, 7)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	c, _ := svc.UnreadCount(ctx, 7)
	assert.Zero(t, c)
}

func TestDeleteChecksOwner(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	n, _ := svc.Notify(ctx, MatchEvent(7, 1, "Bob"))

	assert.True(t, apperr.Is(svc.Delete(ctx, n.ID, 8), apperr.KindUnauthorized))
	require.NoError(t, svc.Delete(ctx, n.ID, 7))
	list, _ := svc.List(ctx, 7)
	assert.Empty(t, list)
}

func TestDeleteOlderThan(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	svc.now = func() time.Time { return now.Add(-40 * 24 * time.Hour) }
	_, _ = svc.Notify(ctx, MatchEvent(7, 1, "Old"))
	svc.now = func() time.Time { return now }
	_, _ = svc.Notify(ctx, MatchEvent(7, 2, "New"))

	n, err := svc.DeleteOlderThan(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	list, _ := svc.List(ctx, 7)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].RelatedID)
}

func TestGroupMessageEventDefaultsTitle(t *testing.T) {
	ev := GroupMessageEvent(1, 2, "Ann", "")
	assert.Equal(t, "Ann sent a message in a group chat", ev.Message)
	assert.Equal(t, RelatedGroup, ev.RelatedType)
}

func TestDispatcherDeliversQueuedEvents(t *testing.T) {
	svc, mem, _ := newService(t)
	d := NewDispatcher(svc, 2, 16, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		d.mu.RLock()
		defer d.mu.RUnlock()
		return d.running
	}, time.Second, time.Millisecond)

	for i := 0; i < 10; i++ {
		d.Enqueue(DirectMessageEvent(5, int64(i+1), "Ann"))
	}

	assert.Eventually(t, func() bool {
		c, _ := mem.CountUnreadNotifications(context.Background(), 5)
		return c == 10
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestDispatcherInlineWhenStopped(t *testing.T) {
	svc, mem, _ := newService(t)
	d := NewDispatcher(svc, 1, 1, zerolog.Nop())

	d.Enqueue(MatchEvent(5, 1, "Ann"))

	c, _ := mem.CountUnreadNotifications(context.Background(), 5)
	assert.Equal(t, 1, c)
}

func TestHandlerRoutes(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	n, _ := svc.Notify(ctx, MatchEvent(7, 1, "Bob"))
	_, _ = svc.Notify(ctx, MatchEvent(7, 2, "Cat"))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), 7)))
		})
	})
	r.Route("/notifications", NewHandler(svc).Routes)

	do := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	rec := do(http.MethodGet, "/notifications/unread/count")
	require.Equal(t, http.StatusOK, rec.Code)
	var count map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &count))
	assert.Equal(t, 2, count["count"])

	rec = do(http.MethodPut, "/notifications/"+itoa(n.ID)+"/read")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodGet, "/notifications/unread")
	var unread []store.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unread))
	assert.Len(t, unread, 1)

	rec = do(http.MethodPut, "/notifications/read-all")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodDelete, "/notifications/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(http.MethodGet, "/notifications/")
	var all []store.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
	for _, x := range all {
		assert.True(t, x.IsRead)
	}
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
