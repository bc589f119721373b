package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps sessions in Redis so several server instances can share
// them. Each write sets the key TTL to the time the session has left, and
// reads still apply the idle and absolute checks explicitly.
type RedisStore struct {
	client   redis.Cmdable
	timeouts Timeouts
	now      func() time.Time
	logger   *zap.Logger
	prefix   string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.Cmdable, timeouts Timeouts, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	return &RedisStore{
		client:   client,
		timeouts: timeouts,
		now:      o.now,
		logger:   o.logger.With(zap.String("component", "session_store")),
		prefix:   o.prefix,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + "session:" + id
}

func (s *RedisStore) Create(ctx context.Context, id string, data Data) Session {
	now := s.now()
	session := Session{Data: data, CreatedAt: now, LastActivityAt: now}
	if err := s.put(ctx, id, session, now); err != nil {
		s.logger.Error("storing session", zap.Error(err))
	}
	return session
}

func (s *RedisStore) Get(ctx context.Context, id string) (Session, bool) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Error("loading session", zap.Error(err))
		}
		return Session{}, false
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		s.logger.Warn("discarding unreadable session", zap.Error(err))
		s.Destroy(ctx, id)
		return Session{}, false
	}
	now := s.now()
	if s.timeouts.Expired(session, now) {
		s.Destroy(ctx, id)
		return Session{}, false
	}
	session.LastActivityAt = now
	alive, err := s.touch(ctx, id, session, now)
	if err != nil {
		s.logger.Warn("refreshing session activity", zap.Error(err))
		return session, true
	}
	if !alive {
		// Destroyed between the read and the refresh.
		return Session{}, false
	}
	return session, true
}

func (s *RedisStore) Destroy(ctx context.Context, id string) {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		s.logger.Error("deleting session", zap.Error(err))
	}
}

func (s *RedisStore) put(ctx context.Context, id string, session Session, now time.Time) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	ttl := s.timeouts.remaining(session, now)
	if ttl <= 0 {
		return s.client.Del(ctx, s.key(id)).Err()
	}
	return s.client.Set(ctx, s.key(id), data, ttl).Err()
}

// touch rewrites an existing session with its refreshed activity time. It
// never recreates a key that was deleted in the meantime and reports
// whether the key still existed.
func (s *RedisStore) touch(ctx context.Context, id string, session Session, now time.Time) (bool, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return false, fmt.Errorf("encoding session: %w", err)
	}
	ttl := s.timeouts.remaining(session, now)
	if ttl <= 0 {
		return false, s.client.Del(ctx, s.key(id)).Err()
	}
	return s.client.SetXX(ctx, s.key(id), data, ttl).Result()
}

// RedisCredentialStore is a CredentialStore backed by Redis key expiry.
type RedisCredentialStore struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
	prefix string
}

var _ CredentialStore = (*RedisCredentialStore)(nil)

// NewRedisCredentialStore creates a Redis-backed credential cache.
func NewRedisCredentialStore(client redis.Cmdable, ttl time.Duration, opts ...Option) *RedisCredentialStore {
	o := buildOptions(opts)
	return &RedisCredentialStore{
		client: client,
		ttl:    ttl,
		now:    o.now,
		logger: o.logger.With(zap.String("component", "credential_store")),
		prefix: o.prefix,
	}
}

func (s *RedisCredentialStore) key(userID string) string {
	return s.prefix + "creds:" + userID
}

func (s *RedisCredentialStore) Set(ctx context.Context, userID string, creds Credentials) {
	creds.At = s.now()
	data, err := json.Marshal(creds)
	if err != nil {
		s.logger.Error("encoding credentials", zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, s.key(userID), data, s.ttl).Err(); err != nil {
		s.logger.Error("storing credentials", zap.Error(err))
	}
}

func (s *RedisCredentialStore) Get(ctx context.Context, userID string) (Credentials, bool) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Error("loading credentials", zap.Error(err))
		}
		return Credentials{}, false
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil || s.now().Sub(creds.At) >= s.ttl {
		if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
			s.logger.Error("pruning credentials", zap.Error(err))
		}
		return Credentials{}, false
	}
	return creds, true
}

// NewRedisClient parses a redis:// URL and returns a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return redis.NewClient(opts), nil
}
