package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/hackchat/internal/persist"
)

type Store struct {
	rdb *redis.Client
	key string
}

func New(addr, password string, db int, key string) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), key)
}

func NewWithClient(rdb *redis.Client, key string) *Store {
	return &Store{rdb: rdb, key: key}
}

func (s *Store) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(cctx).Err()
}

func (s *Store) Read(ctx context.Context) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persist.ErrNoSnapshot
	}
	return b, err
}

func (s *Store) Write(ctx context.Context, payload []byte) error {
	return s.rdb.Set(ctx, s.key, payload, 0).Err()
}

func (s *Store) Delete(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }
