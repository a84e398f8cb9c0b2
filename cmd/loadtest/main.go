package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"buddychat/internal/auth"
	"buddychat/internal/logger"
	"buddychat/internal/middleware"
)

var (
	addr      = flag.String("addr", "localhost:8080", "server host:port")
	secret    = flag.String("secret", "", "JWT_SECRET of the server")
	hookToken = flag.String("internal-token", "", "INTERNAL_TOKEN of the server")
	pairs     = flag.Int("pairs", 50, "number of matched user pairs")
	msgCount  = flag.Int("msgs", 20, "messages sent per user")
	firstUser = flag.Int64("first-user", 1, "lowest user id to use; ids must exist on the server")
)

var (
	sent     atomic.Int64
	received atomic.Int64
	failed   atomic.Int64
)

func main() {
	flag.Parse()
	log := logger.New("development")
	if *secret == "" || *hookToken == "" {
		log.Fatal().Msg("-secret and -internal-token are required")
	}
	issuer := auth.NewJWTValidator(*secret)

	log.Info().Int("users", *pairs*2).Int("msgs", *msgCount).Msg("starting load test")
	start := time.Now()

	// Pair i is users first+2i and first+2i+1.
	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(log, issuer, pairID)
		}(i)
	}
	wg.Wait()

	log.Info().
		Int64("sent", sent.Load()).
		Int64("received", received.Load()).
		Int64("failed", failed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("load test complete")
}

func runPair(log zerolog.Logger, issuer *auth.JWTValidator, pairID int) {
	userA := *firstUser + int64(2*pairID)
	userB := userA + 1

	tokenA, errA := issuer.IssueToken(userA, fmt.Sprintf("u_%d_a", pairID), time.Hour)
	tokenB, errB := issuer.IssueToken(userB, fmt.Sprintf("u_%d_b", pairID), time.Hour)
	if err := errors.Join(errA, errB); err != nil {
		log.Error().Err(err).Msg("issuing tokens")
		failed.Add(1)
		return
	}

	matchID, err := recordMatch(userA, userB)
	if err != nil {
		log.Error().Err(err).Int("pair", pairID).Msg("creating match")
		failed.Add(1)
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(log, &wsWg, tokenA, userA, matchID)
	go spamChat(log, &wsWg, tokenB, userB, matchID)
	wsWg.Wait()
}

func recordMatch(userA, userB int64) (int64, error) {
	body, _ := json.Marshal(map[string]int64{"user1Id": userA, "user2Id": userB})
	req, _ := http.NewRequest(http.MethodPost, "http://"+*addr+"/internal/matches", bytes.NewReader(body))
	req.Header.Set(middleware.InternalTokenHeader, *hookToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	var data struct {
		MatchID int64 `json:"matchId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, err
	}
	return data.MatchID, nil
}

func writeFrame(conn *websocket.Conn, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, buf.Bytes())
}

// readFrames counts MESSAGE frames until the connection closes.
func readFrames(conn *websocket.Conn, connected chan<- struct{}) {
	var once sync.Once
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		r := frame.NewReader(bytes.NewReader(msg))
		for {
			f, err := r.Read()
			if err != nil {
				break
			}
			if f == nil {
				continue
			}
			switch f.Command {
			case frame.CONNECTED:
				once.Do(func() { close(connected) })
			case frame.MESSAGE:
				received.Add(1)
			case frame.ERROR:
				failed.Add(1)
			}
		}
	}
}

func spamChat(log zerolog.Logger, wg *sync.WaitGroup, token string, userID, matchID int64) {
	defer wg.Done()

	url := fmt.Sprintf("ws://%s/ws?token=%s", *addr, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Error().Err(err).Int64("user", userID).Msg("ws connect failed")
		failed.Add(1)
		return
	}
	defer conn.Close()

	connected := make(chan struct{})
	go readFrames(conn, connected)

	if err := writeFrame(conn, frame.New(frame.CONNECT, frame.AcceptVersion, "1.2", frame.Host, *addr)); err != nil {
		failed.Add(1)
		return
	}
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		log.Error().Int64("user", userID).Msg("no CONNECTED frame")
		failed.Add(1)
		return
	}

	topic := fmt.Sprintf("/topic/match/%d", matchID)
	if err := writeFrame(conn, frame.New(frame.SUBSCRIBE, frame.Id, "0", frame.Destination, topic)); err != nil {
		failed.Add(1)
		return
	}

	dest := fmt.Sprintf("/app/chat/%d", matchID)
	for i := 0; i < *msgCount; i++ {
		body, _ := json.Marshal(map[string]any{
			"senderId": userID,
			"content":  fmt.Sprintf("LoadTest Msg %d from %d", i, userID),
		})
		f := frame.New(frame.SEND, frame.Destination, dest, frame.ContentType, "application/json")
		f.Body = body
		if err := writeFrame(conn, f); err != nil {
			log.Error().Err(err).Int64("user", userID).Msg("send failed")
			failed.Add(1)
			break
		}
		sent.Add(1)
		// Small sleep to simulate real network pacing.
		time.Sleep(10 * time.Millisecond)
	}

	// Give the last broadcasts time to arrive before disconnecting.
	time.Sleep(500 * time.Millisecond)
	_ = writeFrame(conn, frame.New(frame.DISCONNECT))
	log.Debug().Int64("user", userID).Int("msgs", *msgCount).Msg("finished sending")
}
