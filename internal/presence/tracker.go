package presence

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker records open connections per user. Each connection is tracked by
// its session id and lapses after a TTL unless refreshed. A user with at
// least one live connection is online.
type Tracker interface {
	Connect(ctx context.Context, userID int64, sessionID string) error
	Disconnect(ctx context.Context, userID int64, sessionID string) error
	// Refresh extends the liveness window of an open connection, reviving it
	// if it already lapsed.
	Refresh(ctx context.Context, userID int64, sessionID string) error
	Online(ctx context.Context, userID int64) (bool, error)
}

const keyPrefix = "presence:user:"

// RedisTracker keeps one sorted set per user: members are session ids, scores
// the unix millisecond at which the session lapses.
type RedisTracker struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewRedisTracker(rdb redis.Cmdable, ttl time.Duration) *RedisTracker {
	return &RedisTracker{rdb: rdb, ttl: ttl, now: time.Now}
}

func presenceKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (t *RedisTracker) Connect(ctx context.Context, userID int64, sessionID string) error {
	return t.touch(ctx, userID, sessionID)
}

func (t *RedisTracker) Refresh(ctx context.Context, userID int64, sessionID string) error {
	return t.touch(ctx, userID, sessionID)
}

func (t *RedisTracker) touch(ctx context.Context, userID int64, sessionID string) error {
	key := presenceKey(userID)
	now := t.now()
	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(t.ttl).UnixMilli()), Member: sessionID})
		p.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(now.UnixMilli(), 10))
		// The whole key goes once the last session stops refreshing.
		p.Expire(ctx, key, t.ttl)
		return nil
	})
	return err
}

func (t *RedisTracker) Disconnect(ctx context.Context, userID int64, sessionID string) error {
	return t.rdb.ZRem(ctx, presenceKey(userID), sessionID).Err()
}

func (t *RedisTracker) Online(ctx context.Context, userID int64) (bool, error) {
	n, err := t.rdb.ZCount(ctx, presenceKey(userID), strconv.FormatInt(t.now().UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryTracker is the single-process Tracker, with the same lapse rules.
type MemoryTracker struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	conns map[int64]map[string]time.Time
}

func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{ttl: ttl, now: time.Now, conns: make(map[int64]map[string]time.Time)}
}

func (t *MemoryTracker) Connect(_ context.Context, userID int64, sessionID string) error {
	t.touch(userID, sessionID)
	return nil
}

func (t *MemoryTracker) Refresh(_ context.Context, userID int64, sessionID string) error {
	t.touch(userID, sessionID)
	return nil
}

func (t *MemoryTracker) touch(userID int64, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessions, ok := t.conns[userID]
	if !ok {
		sessions = make(map[string]time.Time)
		t.conns[userID] = sessions
	}
	sessions[sessionID] = t.now().Add(t.ttl)
}

func (t *MemoryTracker) Disconnect(_ context.Context, userID int64, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns[userID], sessionID)
	if len(t.conns[userID]) == 0 {
		delete(t.conns, userID)
	}
	return nil
}

func (t *MemoryTracker) Online(_ context.Context, userID int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for _, expires := range t.conns[userID] {
		if !now.After(expires) {
			return true, nil
		}
	}
	return false, nil
}
