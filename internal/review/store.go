package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

var (
	ErrSessionNotFound = errors.New("review session not found")
	ErrSessionBusy     = errors.New("review session is busy")
)

// SessionStore keeps review sessions between requests. Lock serializes
// actions on one session; the returned func releases it.
type SessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Lock(ctx context.Context, id uuid.UUID) (func() error, error)
	Clear(ctx context.Context) error
}

// MemoryStore is the single-process SessionStore used when Redis is not
// configured.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID][]byte
	locks    map[uuid.UUID]*memoryLock
}

// memoryLock is dropped from the map once nobody holds or waits for it.
type memoryLock struct {
	slot chan struct{}
	refs int
}

var _ SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID][]byte),
		locks:    make(map[uuid.UUID]*memoryLock),
	}
}

// Get returns a copy; callers persist changes with Save.
func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	data, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	m.mu.Lock()
	m.sessions[s.ID] = data
	m.mu.Unlock()
	return nil
}

// Lock waits for the session's slot or until ctx is done.
func (m *MemoryStore) Lock(ctx context.Context, id uuid.UUID) (func() error, error) {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &memoryLock{slot: make(chan struct{}, 1)}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		m.dropRef(id, l)
		return nil, fmt.Errorf("%w: %v", ErrSessionBusy, ctx.Err())
	}

	var once sync.Once
	return func() error {
		once.Do(func() {
			<-l.slot
			m.dropRef(id, l)
		})
		return nil
	}, nil
}

func (m *MemoryStore) dropRef(id uuid.UUID, l *memoryLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 && m.locks[id] == l {
		delete(m.locks, id)
	}
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.sessions = make(map[uuid.UUID][]byte)
	m.mu.Unlock()
	return nil
}

const (
	sessionKeyPrefix = "review:session:"
	lockKeyPrefix    = "review:lock:"
)

// RedisStore keeps sessions in Redis so several API replicas can serve the
// same reviewer. Locks are SET NX keys owned by a random token.
type RedisStore struct {
	redis     *redis.Client
	ttl       time.Duration
	lockTTL   time.Duration
	lockWait  time.Duration
	lockPolls uint64
	logger    zerolog.Logger
}

var _ SessionStore = (*RedisStore)(nil)

// NewRedisStore keeps sessions for ttl. Held locks expire after lockTTL unless
// their owner is still alive to extend them.
func NewRedisStore(client *redis.Client, ttl, lockTTL time.Duration, logger zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &RedisStore{
		redis:     client,
		ttl:       ttl,
		lockTTL:   lockTTL,
		lockWait:  50 * time.Millisecond,
		lockPolls: 40,
		logger:    logger.With().Str("component", "session_store").Logger(),
	}
}

func sessionKey(id uuid.UUID) string { return sessionKeyPrefix + id.String() }
func lockKey(id uuid.UUID) string    { return lockKeyPrefix + id.String() }

func (r *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	data, err := r.redis.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// Save writes the session and refreshes its TTL.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.redis.Set(ctx, sessionKey(s.ID), data, r.ttl).Err()
}

var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Lock polls SET NX until acquired, the backoff budget runs out
// (ErrSessionBusy) or ctx ends. While held, the lock is extended every third
// of its TTL, so it only lapses when the holder dies.
func (r *RedisStore) Lock(ctx context.Context, id uuid.UUID) (func() error, error) {
	key := lockKey(id)
	token := uuid.NewString()

	backoff := retry.WithMaxRetries(r.lockPolls, retry.NewConstant(r.lockWait))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		acquired, err := r.redis.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !acquired {
			return retry.RetryableError(ErrSessionBusy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepLock(context.WithoutCancel(ctx), key, token, stop, done)

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			close(stop)
			<-done
			// Unlock must run even when the request context is already cancelled.
			err = unlockScript.Run(context.WithoutCancel(ctx), r.redis, []string{key}, token).Err()
		})
		return err
	}, nil
}

func (r *RedisStore) keepLock(ctx context.Context, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := r.lockTTL / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			extended, err := extendScript.Run(ctx, r.redis, []string{key}, token, r.lockTTL.Milliseconds()).Int()
			if err != nil {
				r.logger.Warn().Err(err).Str("key", key).Msg("session lock not extended")
				continue
			}
			if extended == 0 {
				r.logger.Error().Str("key", key).Msg("session lock lost")
				return
			}
		}
	}
}

// Clear deletes every stored session.
func (r *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan sessions: %w", err)
		}
		if len(keys) > 0 {
			if err := r.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete sessions: %w", err)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	r.logger.Info().Msg("sessions cleared")
	return nil
}
