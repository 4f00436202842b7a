// Package redisstore keeps tokens in Redis (or any RESP-compatible server
// such as Valkey) so that several processes can share one session.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every key.
const DefaultPrefix = "fmrest-token:"

type Store struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration

	// owned is set when Open created rdb.
	owned bool
}

type Option func(*Store)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL expires stored tokens after ttl. FileMaker sessions idle out
// server side after 15 minutes, so a matching TTL avoids stale reads.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New wraps an existing client. The caller owns the client's lifecycle.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open parses a redis:// URL and connects.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(o)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	s := New(rdb, opts...)
	s.owned = true
	return s, nil
}

// Close closes the client if Open created it. Clients passed to New are
// left open.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) Load(ctx context.Context, key string) (string, bool, error) {
	token, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

func (s *Store) Store(ctx context.Context, key, token string) error {
	return s.rdb.Set(ctx, s.prefix+key, token, s.ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}
