package stomp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"buddychat/internal/apperr"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a frame to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Largest inbound WebSocket message.
)

// Session is one STOMP connection over one WebSocket. Its state machine is
// new -> connected -> closed; subscriptions only exist while connected.
type Session struct {
	ID     string
	UserID int64

	srv  *Server
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	// ctx is cancelled when the socket goes away. Inbound writes do not use
	// it directly.
	ctx    context.Context
	cancel context.CancelFunc

	connected bool // read pump only

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(srv *Server, conn *websocket.Conn, userID int64) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Session{
		ID:     id,
		UserID: userID,
		srv:    srv,
		conn:   conn,
		send:   make(chan []byte, srv.opts.SendBuffer),
		log:    srv.log.With().Str("session", id).Int64("user_id", userID).Logger(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Deliver implements pubsub.Subscriber. A full send buffer drops the frame.
func (s *Session) Deliver(subID, topic string, body []byte) bool {
	f := frame.New(frame.MESSAGE,
		frame.Subscription, subID,
		frame.MessageId, uuid.NewString(),
		frame.Destination, topic,
		frame.ContentType, "application/json",
	)
	f.Body = body
	return s.enqueue(f)
}

func (s *Session) enqueue(f *frame.Frame) bool {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		s.log.Error().Err(err).Str("command", f.Command).Msg("encoding frame")
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- buf.Bytes():
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// close tears the session down once. Pending frames already in the buffer
// are flushed by the write pump before the socket closes.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
}

// readPump decodes frames from the socket until it fails or the client
// disconnects. The write pump owns closing the socket.
func (s *Session) readPump() {
	defer func() {
		s.close()
		s.srv.unregister(s)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.srv.refreshPresence(s)
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		r := frame.NewReader(bytes.NewReader(message))
		for {
			f, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				s.protocolError("malformed frame: " + err.Error())
				return
			}
			if f == nil {
				continue // heart-beat
			}
			if !s.handle(f) {
				return
			}
		}
	}
}

// writePump moves queued frames to the socket and keeps it alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
		s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Frames are NUL terminated, so queued ones can share a message.
			n := len(s.send)
			for i := 0; i < n; i++ {
				w.Write(<-s.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-s.done:
			s.flush()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) flush() {
	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// handle processes one client frame and reports whether to keep reading.
func (s *Session) handle(f *frame.Frame) bool {
	if !s.connected {
		switch f.Command {
		case frame.CONNECT, frame.STOMP:
			return s.onConnect(f)
		default:
			s.protocolError("expected CONNECT, got " + f.Command)
			return false
		}
	}

	var err error
	switch f.Command {
	case frame.SUBSCRIBE:
		err = s.onSubscribe(f)
	case frame.UNSUBSCRIBE:
		err = s.onUnsubscribe(f)
	case frame.SEND:
		err = s.onSend(f)
	case frame.DISCONNECT:
		s.receipt(f)
		s.log.Debug().Msg("client disconnected")
		return false
	case frame.CONNECT, frame.STOMP:
		err = apperr.InvalidPayload("already connected")
	default:
		err = apperr.InvalidPayload("unsupported command " + f.Command)
	}

	if err != nil {
		s.sendError(f, err)
		return true
	}
	s.receipt(f)
	return true
}

func (s *Session) onConnect(f *frame.Frame) bool {
	if versions, ok := f.Header.Contains(frame.AcceptVersion); ok && !supports12(versions) {
		s.protocolError("supported protocol version is 1.2")
		return false
	}
	s.connected = true
	s.enqueue(frame.New(frame.CONNECTED,
		frame.Version, "1.2",
		frame.Session, s.ID,
		frame.Server, "buddychat",
		frame.HeartBeat, "0,0",
	))
	s.log.Info().Msg("stomp session connected")
	return true
}

func supports12(versions string) bool {
	for _, v := range strings.Split(versions, ",") {
		if strings.TrimSpace(v) == "1.2" {
			return true
		}
	}
	return false
}

func (s *Session) onSubscribe(f *frame.Frame) error {
	id := f.Header.Get(frame.Id)
	dest := f.Header.Get(frame.Destination)
	if id == "" || dest == "" {
		return apperr.InvalidPayload("SUBSCRIBE needs id and destination")
	}
	guard, params, ok := s.srv.subs.Match(dest)
	if !ok {
		return apperr.InvalidPayload("unknown destination " + dest)
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.srv.opts.WriteTimeout)
	defer cancel()
	if err := guard(ctx, s, params, nil); err != nil {
		s.log.Warn().Err(err).Str("destination", dest).Msg("subscription refused")
		return err
	}
	s.srv.router.Subscribe(s, id, dest)
	s.log.Debug().Str("subscription", id).Str("destination", dest).Msg("subscribed")
	return nil
}

func (s *Session) onUnsubscribe(f *frame.Frame) error {
	id := f.Header.Get(frame.Id)
	if id == "" {
		return apperr.InvalidPayload("UNSUBSCRIBE needs id")
	}
	s.srv.router.Unsubscribe(s, id)
	return nil
}

func (s *Session) onSend(f *frame.Frame) error {
	dest := f.Header.Get(frame.Destination)
	if dest == "" {
		return apperr.InvalidPayload("SEND needs destination")
	}
	h, params, ok := s.srv.routes.Match(dest)
	if !ok {
		return apperr.NotFound("no handler for destination " + dest)
	}

	// An accepted write must finish even if the socket drops mid-way.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.srv.opts.WriteTimeout)
	defer cancel()

	if err := h(ctx, s, params, f.Body); err != nil {
		ev := s.log.Warn()
		if apperr.KindOf(err) == apperr.KindInternal {
			ev = s.log.Error()
		}
		ev.Err(err).Str("destination", dest).Msg("inbound message rejected")
		return err
	}
	return nil
}

func (s *Session) receipt(f *frame.Frame) {
	if id := f.Header.Get(frame.Receipt); id != "" {
		s.enqueue(frame.New(frame.RECEIPT, frame.ReceiptId, id))
	}
}

// sendError reports a failed frame to this connection only and keeps it open.
func (s *Session) sendError(f *frame.Frame, err error) {
	ef := frame.New(frame.ERROR,
		frame.Message, string(apperr.KindOf(err)),
		frame.ContentType, "text/plain",
	)
	if id := f.Header.Get(frame.Receipt); id != "" {
		ef.Header.Add(frame.ReceiptId, id)
	}
	if dest := f.Header.Get(frame.Destination); dest != "" {
		ef.Header.Add(frame.Destination, dest)
	}
	ef.Body = []byte(apperr.Message(err))
	s.enqueue(ef)
}

// protocolError sends a final ERROR frame; the caller closes the session.
func (s *Session) protocolError(msg string) {
	ef := frame.New(frame.ERROR, frame.Message, "ProtocolError", frame.ContentType, "text/plain")
	ef.Body = []byte(msg)
	s.enqueue(ef)
	s.log.Warn().Str("reason", msg).Msg("stomp protocol violation")
}
