// Package redis constructs the go-redis client with the pool settings the
// engine uses for its status and inbox caches.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	_defaultPoolSize    = 20
	_defaultMinIdleCons = 10
	_defaultPoolTimeout = 100 * time.Millisecond
	_pingTimeout        = 2 * time.Second
)

func New(addr, password string, db int, opts ...Option) (*redis.Client, error) {
	const op = "redis.New"

	s := &settings{
		poolSize:    _defaultPoolSize,
		minIdleCons: _defaultMinIdleCons,
		poolTimeout: _defaultPoolTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     s.poolSize,
		MinIdleConns: s.minIdleCons,
		PoolTimeout:  s.poolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), _pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return client, nil
}
