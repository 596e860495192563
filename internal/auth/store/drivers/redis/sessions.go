// Package redis stores sessions in Redis with a TTL equal to the session's
// remaining lifetime. Users stay in the SQL store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
	"github.com/aussiebroadwan/stepup/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// Sessions implements store.Sessions.
type Sessions struct {
	client *redis.Client
	now    func() time.Time
}

// record is the JSON value stored under session:<token_hash>.
type record struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// NewClient connects to a redis:// or rediss:// URL and pings it.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewSessions(client *redis.Client) *Sessions {
	return &Sessions{client: client, now: time.Now}
}

func (s *Sessions) CreateSession(ctx context.Context, sess domain.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("redis: session %s already expired", sess.ID)
	}
	data, err := json.Marshal(record{
		ID:        sess.ID,
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt.UnixMilli(),
		ExpiresAt: sess.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+sess.TokenHash, data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *Sessions) GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error) {
	data, err := s.client.Get(ctx, keyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Session{}, fmt.Errorf("redis: decode session: %w", err)
	}
	return domain.Session{
		ID:        rec.ID,
		TokenHash: hash,
		UserID:    rec.UserID,
		CreatedAt: time.UnixMilli(rec.CreatedAt).UTC(),
		ExpiresAt: time.UnixMilli(rec.ExpiresAt).UTC(),
	}, nil
}

func (s *Sessions) DeleteSession(ctx context.Context, hash string) error {
	n, err := s.client.Del(ctx, keyPrefix+hash).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteExpiredSessions is a no-op; Redis expires keys on its own.
func (s *Sessions) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (s *Sessions) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
