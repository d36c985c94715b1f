// Package app wires the engine together: storage, queue, adapters, services,
// background loops and the HTTP surface, all under one errgroup.
package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hrnotify/internal/config"
	"hrnotify/internal/entity"
	"hrnotify/internal/metric"
	"hrnotify/internal/repository"
	"hrnotify/internal/service"
	"hrnotify/internal/transport/amqp"
	httpt "hrnotify/internal/transport/http"
	"hrnotify/internal/transport/sender"
	"hrnotify/pkg/backoff"
	"hrnotify/pkg/postgres"
	"hrnotify/pkg/rabbit"
	"hrnotify/pkg/storage/redis"
)

func Run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	eg, ctx := errgroup.WithContext(ctx)

	pg, err := initDatabase(ctx, &cfg.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := repository.Migrate(pg.Pool); err != nil {
		return fmt.Errorf("app.Run: migrate: %w", err)
	}

	rdb, err := initCache(&cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	queue, err := initQueue(&cfg.Rabbit)
	if err != nil {
		return err
	}
	defer queue.Close()

	notifyRepo := repository.NewNotifyRepository(pg.Pool)
	deliveryRepo := repository.NewDeliveryRepository(pg.Pool)
	recipientRepo := repository.NewRecipientRepository(pg.Pool)
	inboxRepo := repository.NewInboxRepository(pg.Pool)
	cacheRepo := repository.NewCacheRepository(rdb)

	typePolicies, err := repository.NewPolicyRepository(pg.Pool).List(ctx)
	if err != nil {
		return fmt.Errorf("app.Run: load type policies: %w", err)
	}

	policies := buildChannelPolicies(&cfg.Channels)
	adapters := initAdapters(cfg, inboxRepo, log)
	metrics := metric.New()
	selector := service.NewSelector(policies.EnabledMask(), typePolicies)

	ingress := service.NewIngress(notifyRepo, recipientRepo, selector, queue, metrics, log)
	dispatcher := service.NewDispatcher(notifyRepo, deliveryRepo, recipientRepo, selector, policies, log)
	acks := service.NewAcks(deliveryRepo, inboxRepo, cacheRepo, policies, metrics, log)
	status := service.NewStatus(notifyRepo, deliveryRepo, inboxRepo, cacheRepo, log)

	scheduler := service.NewScheduler(
		deliveryRepo,
		notifyRepo,
		recipientRepo,
		adapters,
		policies,
		cacheRepo,
		metrics,
		log,
		service.WithPollInterval(cfg.Engine.PollInterval),
		service.WithSweepInterval(cfg.Engine.SweepInterval),
		service.WithClaimBatch(cfg.Engine.ClaimBatch),
		service.WithLockTimeout(cfg.Engine.LockTimeout),
	)

	eg.Go(func() error { return scheduler.Run(ctx) })

	consumer := amqp.NewConsumer(queue, dispatcher, log)
	eg.Go(func() error { return consumer.Run(ctx) })

	// Resume fan-outs interrupted by the previous shutdown before new
	// traffic piles on.
	if _, err := dispatcher.Recover(ctx, cfg.Engine.RecoveryBatch); err != nil {
		return fmt.Errorf("app.Run: recovery scan: %w", err)
	}

	prune, err := initPruneJob(ctx, &cfg.Engine, notifyRepo, log)
	if err != nil {
		return err
	}
	defer prune.Stop()

	if err := initHTTPServer(ctx, eg, cfg, ingress, status, acks, metrics, log); err != nil {
		return err
	}

	return waitForShutdown(eg)
}

func initDatabase(ctx context.Context, cfg *config.Postgres) (*postgres.Postgres, error) {
	pg, err := postgres.New(ctx, cfg.URL,
		postgres.MaxPoolSize(int32(cfg.MaxPoolSize)),
		postgres.ConnAttempts(cfg.ConnAttempts),
		postgres.ConnDelay(cfg.ConnDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("app.initDatabase: %w", err)
	}
	return pg, nil
}

func initCache(cfg *config.Redis) (*goredis.Client, error) {
	rdb, err := redis.New(cfg.Addr, cfg.Password, 0,
		redis.PoolSize(cfg.PoolSize),
		redis.MinIdleCons(cfg.MinIdleCons),
		redis.PoolTimeout(cfg.PoolTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("app.initCache: %w", err)
	}
	return rdb, nil
}

func initQueue(cfg *config.Rabbit) (*rabbit.Client, error) {
	client, err := rabbit.New(rabbit.Config{
		URL:         cfg.URL,
		Queue:       cfg.Queue,
		MaxLength:   cfg.MaxLength,
		MaxPriority: uint8(cfg.MaxPriority),
		Prefetch:    cfg.Prefetch,
	})
	if err != nil {
		return nil, fmt.Errorf("app.initQueue: %w", err)
	}
	return client, nil
}

func initAdapters(cfg *config.Config, inbox *repository.InboxRepository, log zerolog.Logger) service.Adapters {
	adapters := service.Adapters{}

	register := func(enabled bool, a service.Adapter) {
		if enabled {
			adapters[a.Channel()] = a
		}
	}

	register(cfg.Channels.InApp.Enabled, sender.NewInAppSender(inbox, log))
	register(cfg.Channels.Email.Enabled, sender.NewEmailSender(
		cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, log))
	register(cfg.Channels.SMS.Enabled, sender.NewSMSSender(
		cfg.Gateways.SMS.BaseURL, cfg.Gateways.SMS.Token, log))
	register(cfg.Channels.Push.Enabled, sender.NewPushSender(
		cfg.Gateways.Push.BaseURL, cfg.Gateways.Push.Token, log))
	register(cfg.Channels.WhatsApp.Enabled, sender.NewWhatsAppSender(
		cfg.Gateways.WhatsApp.BaseURL, cfg.Gateways.WhatsApp.Token, log))

	return adapters
}

func buildChannelPolicies(cfg *config.Channels) service.ChannelPolicies {
	toPolicy := func(s config.ChannelSettings) service.ChannelPolicy {
		return service.ChannelPolicy{
			Enabled:     s.Enabled,
			Workers:     s.Workers,
			Timeout:     s.Timeout,
			MaxAttempts: s.MaxAttempts,
			Backoff: backoff.Policy{
				Base:       s.BaseDelay,
				Multiplier: s.Multiplier,
				Jitter:     s.Jitter,
			},
			RatePerSec:  s.RatePerSec,
			Burst:       s.Burst,
			SupportsAck: s.SupportsAck,
		}
	}

	return service.ChannelPolicies{
		entity.ChannelInApp:    toPolicy(cfg.InApp),
		entity.ChannelEmail:    toPolicy(cfg.Email),
		entity.ChannelSMS:      toPolicy(cfg.SMS),
		entity.ChannelPush:     toPolicy(cfg.Push),
		entity.ChannelWhatsApp: toPolicy(cfg.WhatsApp),
	}
}

func initPruneJob(ctx context.Context, cfg *config.Engine, repo *repository.NotifyRepository, log zerolog.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(cfg.PruneSchedule, func() {
		jobCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		pruned, err := repo.Prune(jobCtx, time.Now().UTC().Add(-cfg.Retention))
		if err != nil {
			log.Error().Err(err).Msg("prune job failed")
			return
		}
		if pruned > 0 {
			log.Info().Int64("pruned", pruned).Msg("retention prune complete")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("app.initPruneJob: %w", err)
	}
	c.Start()
	return c, nil
}

func initHTTPServer(
	ctx context.Context,
	eg *errgroup.Group,
	cfg *config.Config,
	ingress *service.Ingress,
	status *service.Status,
	acks *service.Acks,
	metrics *metric.Metrics,
	log zerolog.Logger,
) error {
	handler := httpt.NewHandler(ingress, status, acks, metrics, log)

	server := httpt.NewServer(handler, httpt.ServerConfig{
		Addr:            fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, log)

	eg.Go(func() error { return server.Run(ctx) })
	return nil
}

func waitForShutdown(eg *errgroup.Group) error {
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("app.waitForShutdown: %w", err)
	}
	return nil
}
