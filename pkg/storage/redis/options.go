package redis

import (
	"errors"
	"time"
)

type Option func(*settings)

type settings struct {
	poolSize    int
	minIdleCons int
	poolTimeout time.Duration
}

func PoolSize(size int) Option {
	return func(s *settings) {
		s.poolSize = size
	}
}

func MinIdleCons(cons int) Option {
	return func(s *settings) {
		s.minIdleCons = cons
	}
}

func PoolTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.poolTimeout = timeout
	}
}

func (s *settings) validate() error {
	if s.poolSize <= 0 {
		return errors.New("invalid poolSize: must be > 0")
	}
	if s.minIdleCons <= 0 {
		return errors.New("invalid minIdleCons: must be > 0")
	}
	if s.poolTimeout <= 0 {
		return errors.New("invalid poolTimeout: must be > 0")
	}
	return nil
}
