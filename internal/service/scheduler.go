package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"hrnotify/internal/entity"
	"hrnotify/internal/metric"
)

// Scheduler owns retry timing. A poll loop claims due records from the store
// and routes them to per-channel worker pools; workers call the adapters and
// record outcomes through guarded transitions. Pools are sized per channel,
// so a slow SMTP relay never starves in-app push. The loop itself never
// waits on an adapter.
type Scheduler struct {
	deliveries    DeliveryStore
	notifications NotificationStore
	recipients    RecipientStore
	adapters      Adapters
	policies      ChannelPolicies
	cache         StatusCache
	metrics       *metric.Metrics
	log           zerolog.Logger

	pollInterval  time.Duration
	sweepInterval time.Duration
	claimBatch    uint64
	lockTimeout   time.Duration
	now           func() time.Time

	pools map[entity.Channel]*channelPool
	wg    sync.WaitGroup
}

type channelPool struct {
	tasks   chan entity.DeliveryRecord
	limiter *rate.Limiter
	workers int
}

func NewScheduler(
	deliveries DeliveryStore,
	notifications NotificationStore,
	recipients RecipientStore,
	adapters Adapters,
	policies ChannelPolicies,
	cache StatusCache,
	metrics *metric.Metrics,
	log zerolog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		deliveries:    deliveries,
		notifications: notifications,
		recipients:    recipients,
		adapters:      adapters,
		policies:      policies,
		cache:         cache,
		metrics:       metrics,
		log:           log.With().Str("component", "scheduler").Logger(),
		pollInterval:  _defaultPollInterval,
		sweepInterval: _defaultSweepInterval,
		claimBatch:    _defaultClaimBatch,
		lockTimeout:   _defaultLockTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.pools = make(map[entity.Channel]*channelPool)
	for channel, pol := range policies {
		if !pol.Enabled {
			continue
		}
		workers := pol.Workers
		if workers <= 0 {
			workers = 1
		}
		pool := &channelPool{
			tasks:   make(chan entity.DeliveryRecord, workers*2),
			workers: workers,
		}
		if pol.RatePerSec > 0 {
			burst := pol.Burst
			if burst <= 0 {
				burst = 1
			}
			pool.limiter = rate.NewLimiter(rate.Limit(pol.RatePerSec), burst)
		}
		s.pools[channel] = pool
	}

	return s
}

// Run blocks until ctx is cancelled. Errgroup-friendly: always returns nil
// on clean shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	for channel, pool := range s.pools {
		for i := 0; i < pool.workers; i++ {
			s.wg.Add(1)
			go s.worker(ctx, channel, pool)
		}
	}

	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()

	s.log.Info().
		Dur("poll_interval", s.pollInterval).
		Dur("sweep_interval", s.sweepInterval).
		Int("channels", len(s.pools)).
		Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info().Msg("scheduler stopped")
			return nil
		case <-poll.C:
			s.pollOnce(ctx)
		case <-sweep.C:
			s.sweepOnce(ctx)
		}
	}
}

// pollOnce claims one batch of due records and routes them to their pools
// without waiting on any adapter.
func (s *Scheduler) pollOnce(ctx context.Context) {
	const op = "service.Scheduler.pollOnce"

	claimed, err := s.deliveries.ClaimDue(ctx, s.claimBatch, s.now())
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Msg("claim due failed")
		return
	}

	for _, rec := range claimed {
		pool, ok := s.pools[rec.Channel]
		if !ok {
			s.finishNoAdapter(ctx, rec)
			continue
		}
		select {
		case pool.tasks <- rec:
		default:
			// Pool saturated: give the slot back instead of blocking the
			// loop (and every other channel) behind it.
			s.requeue(ctx, rec, "worker pool saturated")
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	const op = "service.Scheduler.sweepOnce"

	now := s.now()

	expired, err := s.deliveries.ExpireOverdue(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Msg("expiry sweep failed")
	} else if expired > 0 {
		s.log.Warn().Str("op", op).Int64("expired", expired).Msg("expiry sweep forced records terminal")
	}

	released, err := s.deliveries.ReleaseStale(ctx, now.Add(-s.lockTimeout), now)
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Msg("stale claim sweep failed")
	} else if released > 0 {
		s.log.Warn().Str("op", op).Int64("released", released).Msg("released stale delivering claims")
	}
}

func (s *Scheduler) worker(ctx context.Context, channel entity.Channel, pool *channelPool) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-pool.tasks:
			s.deliver(ctx, rec, pool)
		}
	}
}

func (s *Scheduler) deliver(ctx context.Context, rec entity.DeliveryRecord, pool *channelPool) {
	const op = "service.Scheduler.deliver"

	if pool.limiter != nil {
		if err := pool.limiter.Wait(ctx); err != nil {
			s.requeue(ctx, rec, "rate limiter interrupted")
			return
		}
	}

	adapter, ok := s.adapters[rec.Channel]
	if !ok {
		s.finishNoAdapter(ctx, rec)
		return
	}

	n, err := s.notifications.GetByID(ctx, rec.NotificationID)
	if err != nil {
		s.recordOutcome(ctx, rec, fmt.Errorf("load notification: %w", err), 0)
		return
	}
	rcp, err := s.recipients.Get(ctx, rec.RecipientID)
	if err != nil {
		s.recordOutcome(ctx, rec, fmt.Errorf("load recipient: %w", err), 0)
		return
	}

	pol := s.policies[rec.Channel]
	sendCtx := ctx
	cancel := func() {}
	if pol.Timeout > 0 {
		sendCtx, cancel = context.WithTimeout(ctx, pol.Timeout)
	}
	start := s.now()
	sendErr := adapter.Send(sendCtx, *rcp, *n)
	cancel()
	latency := s.now().Sub(start)

	s.metrics.Attempt(rec.Channel, latency, sendErr == nil)
	s.recordOutcome(ctx, rec, sendErr, latency)
}

// recordOutcome applies the state machine to one finished attempt. Every
// write is guarded: if the ack tracker superseded the record mid-flight,
// ErrStateConflict tells us our outcome no longer matters.
func (s *Scheduler) recordOutcome(ctx context.Context, rec entity.DeliveryRecord, sendErr error, latency time.Duration) {
	const op = "service.Scheduler.recordOutcome"

	// Outcomes are recorded even when shutdown races the in-flight call.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	now := s.now()
	attempts := rec.Attempts + 1

	if sendErr == nil {
		patch := entity.DeliveryPatch{
			Attempts:       &attempts,
			LastAttemptAt:  &now,
			DeliveredAt:    &now,
			ClearNextRetry: true,
		}
		if err := s.deliveries.Transition(ctx, rec.ID, rec.Version, entity.DeliveryDelivered, patch); err != nil {
			s.logConflict(op, rec, err)
			return
		}
		s.invalidate(ctx, rec.NotificationID)
		s.log.Info().
			Str("op", op).
			Str("delivery_id", rec.ID.String()).
			Str("channel", string(rec.Channel)).
			Int("attempt", attempts).
			Dur("latency", latency).
			Msg("delivered")
		return
	}

	errMsg := sendErr.Error()
	failPatch := entity.DeliveryPatch{
		Attempts:      &attempts,
		LastError:     &errMsg,
		LastAttemptAt: &now,
	}
	if err := s.deliveries.Transition(ctx, rec.ID, rec.Version, entity.DeliveryFailed, failPatch); err != nil {
		s.logConflict(op, rec, err)
		return
	}

	// Failed is transient: immediately resolve to retrying or expired.
	pol := s.policies[rec.Channel]
	if attempts >= rec.MaxAttempts || rec.PastDeadline(now) {
		patch := entity.DeliveryPatch{ClearNextRetry: true}
		if err := s.deliveries.Transition(ctx, rec.ID, rec.Version+1, entity.DeliveryExpired, patch); err != nil {
			s.logConflict(op, rec, err)
			return
		}
		s.metrics.Expired(rec.Channel)
		s.invalidate(ctx, rec.NotificationID)
		s.log.Warn().
			Str("op", op).
			Str("delivery_id", rec.ID.String()).
			Str("channel", string(rec.Channel)).
			Int("attempts", attempts).
			Str("last_error", errMsg).
			Msg("delivery expired")
		return
	}

	next := pol.Backoff.Next(now, attempts)
	patch := entity.DeliveryPatch{NextRetryAt: &next}
	if err := s.deliveries.Transition(ctx, rec.ID, rec.Version+1, entity.DeliveryRetrying, patch); err != nil {
		s.logConflict(op, rec, err)
		return
	}
	s.invalidate(ctx, rec.NotificationID)
	s.log.Info().
		Str("op", op).
		Str("delivery_id", rec.ID.String()).
		Str("channel", string(rec.Channel)).
		Int("attempt", attempts).
		Time("next_retry_at", next).
		Str("error", errMsg).
		Msg("delivery failed, retry scheduled")
}

// requeue returns a claimed record to the scan set without consuming an
// attempt (no adapter was called). Passes through failed to stay inside the
// state machine.
func (s *Scheduler) requeue(ctx context.Context, rec entity.DeliveryRecord, reason string) {
	const op = "service.Scheduler.requeue"

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.deliveries.Transition(ctx, rec.ID, rec.Version, entity.DeliveryFailed,
		entity.DeliveryPatch{LastError: &reason}); err != nil {
		s.logConflict(op, rec, err)
		return
	}
	next := s.now().Add(s.pollInterval)
	if err := s.deliveries.Transition(ctx, rec.ID, rec.Version+1, entity.DeliveryRetrying,
		entity.DeliveryPatch{NextRetryAt: &next}); err != nil {
		s.logConflict(op, rec, err)
	}
}

func (s *Scheduler) finishNoAdapter(ctx context.Context, rec entity.DeliveryRecord) {
	s.recordOutcome(ctx, rec, fmt.Errorf("no adapter wired for channel %s", rec.Channel), 0)
}

func (s *Scheduler) logConflict(op string, rec entity.DeliveryRecord, err error) {
	if errors.Is(err, entity.ErrStateConflict) {
		s.metrics.StateConflict()
		s.log.Info().
			Str("op", op).
			Str("delivery_id", rec.ID.String()).
			Msg("transition lost to concurrent writer, outcome dropped")
		return
	}
	s.log.Error().Err(err).Str("op", op).Str("delivery_id", rec.ID.String()).Msg("transition failed")
}

func (s *Scheduler) invalidate(ctx context.Context, notificationID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateStatus(ctx, notificationID); err != nil {
		s.log.Debug().Err(err).Str("notification_id", notificationID.String()).Msg("status cache invalidation failed")
	}
}
