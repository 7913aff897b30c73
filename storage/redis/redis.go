// Package redis provides a Redis-backed storage.Store so a session mirror can
// be shared between hosts.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jmcleod/oaclient/storage"
)

// Store implements storage.Store on top of a go-redis client. Keys are
// written as "<namespace>:<key>".
type Store struct {
	rdb       redis.UniversalClient
	namespace string
}

var _ storage.Store = (*Store)(nil)

// NewStore wraps an existing client. An empty namespace selects
// storage.DefaultNamespace.
func NewStore(rdb redis.UniversalClient, namespace string) *Store {
	if namespace == "" {
		namespace = storage.DefaultNamespace
	}
	return &Store{rdb: rdb, namespace: namespace}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int, namespace string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewStore(rdb, namespace), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) key(k string) string {
	return s.namespace + ":" + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}
