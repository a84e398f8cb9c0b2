// Package stomp serves STOMP 1.2 over WebSocket: clients subscribe to topics
// of the pubsub router and SEND to /app destinations.
package stomp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"buddychat/internal/middleware"
	"buddychat/internal/presence"
	"buddychat/internal/pubsub"
)

type Options struct {
	// SendBuffer is the per-connection outbound frame queue.
	SendBuffer     int
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

type Server struct {
	router   pubsub.Router
	routes   *Routes
	subs     *Routes
	presence presence.Tracker
	opts     Options
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewServer serves SEND frames through routes and admits SUBSCRIBE frames
// through the guards in subs.
func NewServer(router pubsub.Router, routes, subs *Routes, tracker presence.Tracker, opts Options, log zerolog.Logger) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	s := &Server{
		router:   router,
		routes:   routes,
		subs:     subs,
		presence: tracker,
		opts:     opts,
		log:      log.With().Str("component", "stomp").Logger(),
		sessions: make(map[*Session]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ServeWs upgrades an authenticated request. It sits behind the auth middleware.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := newSession(s, conn, userID)
	s.register(sess)

	go sess.writePump()
	go sess.readPump()
}

func (s *Server) register(sess *Session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.presence.Connect(ctx, sess.UserID, sess.ID); err != nil {
		sess.log.Warn().Err(err).Msg("presence connect failed")
	}
	sess.log.Info().Str("remote", sess.conn.RemoteAddr().String()).Msg("websocket connected")
}

func (s *Server) unregister(sess *Session) {
	s.mu.Lock()
	_, ok := s.sessions[sess]
	delete(s.sessions, sess)
	s.mu.Unlock()
	if !ok {
		return
	}

	s.router.Remove(sess)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.presence.Disconnect(ctx, sess.UserID, sess.ID); err != nil {
		sess.log.Warn().Err(err).Msg("presence disconnect failed")
	}
	sess.log.Info().Msg("websocket disconnected")
}

func (s *Server) refreshPresence(sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.presence.Refresh(ctx, sess.UserID, sess.ID); err != nil {
		sess.log.Debug().Err(err).Msg("presence refresh failed")
	}
}

// Sessions returns the number of open connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every open session.
func (s *Server) Shutdown() {
	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.close()
	}
}
