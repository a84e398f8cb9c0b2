package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddychat/internal/middleware"
)

func router(f *fixture, as int64) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), as)))
		})
	})
	h := NewHandler(f.svc)
	r.Route("/chat", h.ChatRoutes)
	r.Route("/matches", h.MatchRoutes)
	r.Route("/internal", func(r chi.Router) {
		r.Use(middleware.InternalOnly(hookToken))
		h.InternalRoutes(r)
	})
	return r
}

const hookToken = "hook-secret"

func callInternal(h http.Handler, token, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	if token != "" {
		req.Header.Set(middleware.InternalTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func call(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestRESTSendHistoryUnread(t *testing.T) {
	f := setup(t)
	matchPath := strconv.FormatInt(f.match.ID, 10)

	rec := call(router(f, u1), http.MethodPost, "/chat/send", map[string]any{"matchId": f.match.ID, "content": "hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sent Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	assert.Equal(t, "hello", sent.Content)
	assert.Equal(t, "Ann", sent.SenderName)

	rec = call(router(f, u2), http.MethodGet, "/chat/unread/"+matchPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unreadCount":1}`, rec.Body.String())

	rec = call(router(f, u2), http.MethodGet, "/chat/messages/"+matchPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist []Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist, 1)
	assert.True(t, hist[0].IsRead)
}

func TestRESTErrors(t *testing.T) {
	f := setup(t)
	matchPath := strconv.FormatInt(f.match.ID, 10)

	rec := call(router(f, u3), http.MethodPost, "/chat/send", map[string]any{"matchId": f.match.ID, "content": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized","message":"user is not part of this match"}`, rec.Body.String())

	rec = call(router(f, u1), http.MethodGet, "/chat/messages/777", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(router(f, u1), http.MethodGet, "/chat/messages/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(router(f, u3), http.MethodGet, "/chat/unread/"+matchPath, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRESTMatches(t *testing.T) {
	f := setup(t)

	pair := map[string]any{"user1Id": u3, "user2Id": u2}
	rec := callInternal(router(f, u3), hookToken, "/internal/matches", pair)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = callInternal(router(f, u2), hookToken, "/internal/matches", map[string]any{"user1Id": u2, "user2Id": u3})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(router(f, u2), http.MethodGet, "/matches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []MatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = call(router(f, u1), http.MethodPut, "/matches/"+strconv.FormatInt(f.match.ID, 10)+"/status", map[string]string{"status": "BLOCKED"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecordMatchRefusesUsers(t *testing.T) {
	f := setup(t)
	before, err := f.svc.ListMatches(context.Background(), u3)
	require.NoError(t, err)

	rec := call(router(f, u3), http.MethodPost, "/matches", map[string]any{"userId": u2})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	pair := map[string]any{"user1Id": u3, "user2Id": u2}
	rec = callInternal(router(f, u3), "", "/internal/matches", pair)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = callInternal(router(f, u3), "guess", "/internal/matches", pair)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	after, err := f.svc.ListMatches(context.Background(), u3)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	assert.Empty(t, f.notifier.all())
}
