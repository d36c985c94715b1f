package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hrnotify/internal/entity"
	"hrnotify/pkg/cache"
)

const (
	_statusCacheTTL    = 30 * time.Second
	_statusCachePrefix = "delivery_status"
)

// CacheRepository is the read-through cache for delivery status queries.
// Short TTL: status moves fast while deliveries are in flight, and every
// mutation path also invalidates explicitly.
type CacheRepository struct {
	rdb *redis.Client
}

func NewCacheRepository(rdb *redis.Client) *CacheRepository {
	return &CacheRepository{rdb: rdb}
}

func (c *CacheRepository) GetStatus(ctx context.Context, notificationID uuid.UUID) ([]entity.DeliveryRecord, error) {
	const op = "repository.CacheRepository.GetStatus"

	data, err := c.rdb.Get(ctx, cache.Key(_statusCachePrefix, notificationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrDataNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var records []entity.DeliveryRecord
	if err := cache.Deserialize(data, &records); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return records, nil
}

func (c *CacheRepository) SetStatus(ctx context.Context, notificationID uuid.UUID, records []entity.DeliveryRecord) error {
	const op = "repository.CacheRepository.SetStatus"

	data, err := cache.Serialize(records)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.rdb.Set(ctx, cache.Key(_statusCachePrefix, notificationID), data, _statusCacheTTL).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *CacheRepository) InvalidateStatus(ctx context.Context, notificationID uuid.UUID) error {
	const op = "repository.CacheRepository.InvalidateStatus"

	if err := c.rdb.Del(ctx, cache.Key(_statusCachePrefix, notificationID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
