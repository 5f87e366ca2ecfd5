package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is an exported constant used by the authentication engine.
	ErrNotFound = errors.New("session not found")
	// ErrInactive is returned for sessions that were logged out or evicted.
	ErrInactive = errors.New("session inactive")
	// ErrWrongAccount is returned when a session exists but belongs to a
	// different account than the caller claims.
	ErrWrongAccount = errors.New("session account mismatch")
	// ErrIdleExpired is returned when a session sat idle past the timeout.
	// The failure path deactivates the session as a side effect.
	ErrIdleExpired = errors.New("session idle timeout exceeded")
	// ErrRedisUnavailable wraps transport failures from the backing store.
	ErrRedisUnavailable = errors.New("session redis unavailable")
)

// Registers the new session in the account index and evicts whatever
// exceeds the cap, stalest first. The session being created is skipped
// explicitly so it survives even when scores tie.
const capScript = `
local idx = KEYS[1]
local sid = ARGV[1]
local score = tonumber(ARGV[2])
local cap = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

redis.call("ZADD", idx, score, sid)
local n = redis.call("ZCARD", idx)
local evicted = {}
local excess = n - cap
if excess > 0 then
  local candidates = redis.call("ZRANGE", idx, 0, excess)
  for i = 1, #candidates do
    if excess > 0 and candidates[i] ~= sid then
      redis.call("ZREM", idx, candidates[i])
      table.insert(evicted, candidates[i])
      excess = excess - 1
    end
  end
end
redis.call("PEXPIRE", idx, ttl_ms)
return evicted
`

var capLua = redis.NewScript(capScript)

// Store persists sessions and the per-account activity index.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store]. now is injected for testability.
func NewStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) indexKey(accountID string) string {
	return s.prefix + ":u:" + accountID
}

// Create persists the session and enforces the concurrent-session cap,
// deactivating the account's stalest sessions (by last activity) beyond
// maxSessions. Returns the IDs of sessions deactivated to make room.
func (s *Store) Create(ctx context.Context, sess *Session, maxSessions int, ttl time.Duration) ([]string, error) {
	if sess == nil || sess.SessionID == "" || sess.AccountID == "" {
		return nil, errors.New("invalid session")
	}

	if err := s.save(ctx, sess, ttl); err != nil {
		return nil, err
	}

	raw, err := capLua.Run(ctx, s.redis,
		[]string{s.indexKey(sess.AccountID)},
		sess.SessionID, sess.LastActivity, maxSessions, ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var evicted []string
	for _, entry := range raw {
		member, _ := entry.(string)
		if member == "" || member == sess.SessionID {
			continue
		}
		if err := s.deactivate(ctx, member); err != nil && !errors.Is(err, ErrNotFound) {
			return evicted, err
		}
		evicted = append(evicted, member)
	}

	return evicted, nil
}

// Get loads a session record regardless of its active flag.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Touch refreshes the session's last-activity timestamp and its position
// in the account index. Side-effect only; touching an inactive or missing
// session is a no-op.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !sess.Active {
		return nil
	}

	sess.LastActivity = s.now().Unix()
	if err := s.saveKeepTTL(ctx, sess); err != nil {
		return err
	}

	if err := s.redis.ZAdd(ctx, s.indexKey(sess.AccountID), redis.Z{
		Score:  float64(sess.LastActivity),
		Member: sess.SessionID,
	}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Validate checks that the session exists, is active, belongs to
// accountID, and has not sat idle past idleTimeout. An idle-expired
// session is deactivated as part of the failure path.
func (s *Store) Validate(ctx context.Context, sessionID, accountID string, idleTimeout time.Duration) (*Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, ErrInactive
	}
	if sess.AccountID != accountID {
		return nil, ErrWrongAccount
	}

	idle := s.now().Unix() - sess.LastActivity
	if idle > int64(idleTimeout.Seconds()) {
		if err := s.Invalidate(ctx, sessionID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, ErrIdleExpired
	}

	return sess, nil
}

// Invalidate deactivates one session and removes it from the account
// index. Idempotent: an already-inactive session stays inactive.
func (s *Store) Invalidate(ctx context.Context, sessionID string) error {
	return s.deactivate(ctx, sessionID)
}

// InvalidateAll deactivates every active session of the account and drops
// the index. Returns how many sessions were deactivated.
func (s *Store) InvalidateAll(ctx context.Context, accountID string) (int, error) {
	members, err := s.redis.ZRange(ctx, s.indexKey(accountID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count := 0
	for _, sessionID := range members {
		err := s.deactivate(ctx, sessionID)
		switch {
		case err == nil:
			count++
		case errors.Is(err, ErrNotFound):
		default:
			return count, err
		}
	}

	if err := s.redis.Del(ctx, s.indexKey(accountID)).Err(); err != nil {
		return count, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// ActiveSessions enumerates the account's active sessions, most recently
// active first.
func (s *Store) ActiveSessions(ctx context.Context, accountID string) ([]*Session, error) {
	members, err := s.redis.ZRevRange(ctx, s.indexKey(accountID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(members))
	for _, sessionID := range members {
		sess, err := s.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if sess.Active {
			sessions = append(sessions, sess)
		}
	}
	return sessions, nil
}

// ActiveCount returns the size of the account's session index.
func (s *Store) ActiveCount(ctx context.Context, accountID string) (int, error) {
	count, err := s.redis.ZCard(ctx, s.indexKey(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

func (s *Store) deactivate(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if sess.Active {
		sess.Active = false
		sess.LoggedOutAt = s.now().Unix()
		if err := s.saveKeepTTL(ctx, sess); err != nil {
			return err
		}
	}

	if err := s.redis.ZRem(ctx, s.indexKey(sess.AccountID), sessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) saveKeepTTL(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.SessionID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
