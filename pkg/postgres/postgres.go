// Package postgres owns the pgx connection pool and the connect-retry dance
// so the app layer only sees a ready pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	_defaultMaxPoolSize  = 10
	_defaultConnAttempts = 5
	_defaultConnDelay    = 2 * time.Second
)

type Postgres struct {
	Pool *pgxpool.Pool

	maxPoolSize  int32
	connAttempts int
	connDelay    time.Duration
}

type Option func(*Postgres)

func MaxPoolSize(size int32) Option {
	return func(p *Postgres) {
		if size > 0 {
			p.maxPoolSize = size
		}
	}
}

func ConnAttempts(attempts int) Option {
	return func(p *Postgres) {
		if attempts > 0 {
			p.connAttempts = attempts
		}
	}
}

func ConnDelay(delay time.Duration) Option {
	return func(p *Postgres) {
		if delay > 0 {
			p.connDelay = delay
		}
	}
}

func New(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	const op = "postgres.New"

	pg := &Postgres{
		maxPoolSize:  _defaultMaxPoolSize,
		connAttempts: _defaultConnAttempts,
		connDelay:    _defaultConnDelay,
	}
	for _, opt := range opts {
		opt(pg)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: parse dsn: %w", op, err)
	}
	cfg.MaxConns = pg.maxPoolSize

	var pool *pgxpool.Pool
	for attempt := 1; ; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				break
			}
			pool.Close()
		}
		if attempt >= pg.connAttempts {
			return nil, fmt.Errorf("%s: connect after %d attempts: %w", op, attempt, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(pg.connDelay):
		}
	}

	pg.Pool = pool
	return pg, nil
}

func (p *Postgres) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}
