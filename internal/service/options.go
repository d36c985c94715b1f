package service

import "time"

const (
	_defaultPollInterval  = 2 * time.Second
	_defaultSweepInterval = 30 * time.Second
	_defaultClaimBatch    = uint64(100)
	_defaultLockTimeout   = 5 * time.Minute
	_maxClaimBatch        = uint64(1000)
)

type Option func(*Scheduler)

func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

func WithClaimBatch(size uint64) Option {
	return func(s *Scheduler) {
		if size > 0 && size <= _maxClaimBatch {
			s.claimBatch = size
		}
	}
}

// WithLockTimeout sets how long a delivering claim may stay untouched before
// the sweep treats its worker as dead and releases the record.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock overrides the time source. Tests use it to drive the retry
// schedule deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}
