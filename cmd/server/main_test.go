package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddychat/internal/auth"
	"buddychat/internal/config"
	"buddychat/internal/middleware"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRunServesAndShutsDown(t *testing.T) {
	cfg := &config.Config{
		HTTPAddr:            freeAddr(t),
		JWTSecret:           "s3cret",
		CORSOrigins:         "*",
		InternalToken:       "hook",
		NotifyWorkers:       1,
		NotifyQueue:         8,
		NotifyRetentionDays: 30,
		WSSendBuffer:        16,
		WriteTimeout:        time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop(), 3) }()

	base := "http://" + cfg.HTTPAddr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	token, err := auth.NewJWTValidator(cfg.JWTSecret).IssueToken(1, "user1", time.Hour)
	require.NoError(t, err)
	post := func(path string, header, value string) int {
		req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewBufferString(`{"user1Id":1,"user2Id":2}`))
		req.Header.Set(header, value)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// Users cannot mint matches; the like service can.
	assert.Equal(t, http.StatusMethodNotAllowed, post("/matches", "Authorization", "Bearer "+token))
	assert.Equal(t, http.StatusUnauthorized, post("/internal/matches", middleware.InternalTokenHeader, "guess"))
	assert.Equal(t, http.StatusCreated, post("/internal/matches", middleware.InternalTokenHeader, "hook"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
