package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrnotify/internal/entity"
	"hrnotify/internal/service"
)

type statusFixture struct {
	status        *service.Status
	notifications *fakeNotificationStore
	deliveries    *fakeDeliveryStore
	inbox         *fakeInboxStore
	cache         *fakeCache
}

func newStatusFixture() statusFixture {
	notifications := newFakeNotificationStore()
	deliveries := newFakeDeliveryStore()
	inbox := newFakeInboxStore()
	cache := newFakeCache()
	status := service.NewStatus(notifications, deliveries, inbox, cache, zerolog.Nop())
	return statusFixture{status: status, notifications: notifications, deliveries: deliveries, inbox: inbox, cache: cache}
}

func TestStatus_GetDeliveryStatus(t *testing.T) {
	t.Parallel()

	t.Run("unknown notification", func(t *testing.T) {
		t.Parallel()
		fx := newStatusFixture()
		_, err := fx.status.GetDeliveryStatus(context.Background(), uuid.New())
		require.ErrorIs(t, err, entity.ErrNotificationNotFound)
	})

	t.Run("lists records and populates the cache", func(t *testing.T) {
		t.Parallel()
		fx := newStatusFixture()
		rcp := fullRecipient()

		n := queuedNotification(rcp.ID)
		require.NoError(t, fx.notifications.Create(context.Background(), n))
		fx.deliveries.seed(dueRecord(n.ID, rcp.ID, entity.ChannelEmail, 3))
		fx.deliveries.seed(dueRecord(n.ID, rcp.ID, entity.ChannelInApp, 3))

		records, err := fx.status.GetDeliveryStatus(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Len(t, records, 2)

		cached, err := fx.cache.GetStatus(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Len(t, cached, 2)
	})

	t.Run("serves from cache until invalidated", func(t *testing.T) {
		t.Parallel()
		fx := newStatusFixture()
		rcp := fullRecipient()

		n := queuedNotification(rcp.ID)
		require.NoError(t, fx.notifications.Create(context.Background(), n))
		fx.deliveries.seed(dueRecord(n.ID, rcp.ID, entity.ChannelEmail, 3))

		first, err := fx.status.GetDeliveryStatus(context.Background(), n.ID)
		require.NoError(t, err)
		require.Len(t, first, 1)

		// A new record appears behind the cache's back.
		fx.deliveries.seed(dueRecord(n.ID, rcp.ID, entity.ChannelSMS, 3))

		stale, err := fx.status.GetDeliveryStatus(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Len(t, stale, 1, "cached answer until a write invalidates")

		require.NoError(t, fx.cache.InvalidateStatus(context.Background(), n.ID))

		fresh, err := fx.status.GetDeliveryStatus(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Len(t, fresh, 2)
	})
}

func TestStatus_GetInbox(t *testing.T) {
	t.Parallel()

	fx := newStatusFixture()
	rID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, fx.inbox.Insert(context.Background(), &entity.InboxEntry{
			ID:             uuid.New(),
			NotificationID: uuid.New(),
			RecipientID:    rID,
			Type:           entity.TypeGeneral,
			Unread:         i != 0,
			CreatedAt:      time.Now().UTC(),
		}))
	}

	t.Run("default page", func(t *testing.T) {
		t.Parallel()
		entries, err := fx.status.GetInbox(context.Background(), rID, entity.InboxFilter{})
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})

	t.Run("unread only", func(t *testing.T) {
		t.Parallel()
		entries, err := fx.status.GetInbox(context.Background(), rID, entity.InboxFilter{UnreadOnly: true})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("limit is honored", func(t *testing.T) {
		t.Parallel()
		entries, err := fx.status.GetInbox(context.Background(), rID, entity.InboxFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestStatus_ForceRetry(t *testing.T) {
	t.Parallel()

	t.Run("expired record returns to the schedule with a fresh budget", func(t *testing.T) {
		t.Parallel()
		fx := newStatusFixture()
		rcp := fullRecipient()

		rec := dueRecord(uuid.New(), rcp.ID, entity.ChannelEmail, 3)
		rec.State = entity.DeliveryExpired
		rec.Attempts = 3
		rec.NextRetryAt = nil
		fx.deliveries.seed(rec)

		require.NoError(t, fx.status.ForceRetry(context.Background(), rec.ID))

		got := fx.deliveries.byID(rec.ID)
		assert.Equal(t, entity.DeliveryRetrying, got.State)
		assert.Zero(t, got.Attempts)
		assert.NotNil(t, got.NextRetryAt)
	})

	t.Run("delivered record cannot be retried", func(t *testing.T) {
		t.Parallel()
		fx := newStatusFixture()
		rec := dueRecord(uuid.New(), uuid.New(), entity.ChannelEmail, 3)
		rec.State = entity.DeliveryDelivered
		fx.deliveries.seed(rec)

		err := fx.status.ForceRetry(context.Background(), rec.ID)
		require.ErrorIs(t, err, entity.ErrStateConflict)
	})

	t.Run("unknown record", func(t *testing.T) {
		t.Parallel()
		fx := newStatusFixture()
		err := fx.status.ForceRetry(context.Background(), uuid.New())
		require.ErrorIs(t, err, entity.ErrDeliveryNotFound)
	})
}

func TestStatus_ForceExpire(t *testing.T) {
	t.Parallel()

	t.Run("terminates a retrying record", func(t *testing.T) {
		t.Parallel()
		fx := newStatusFixture()
		rec := dueRecord(uuid.New(), uuid.New(), entity.ChannelEmail, 3)
		rec.State = entity.DeliveryRetrying
		fx.deliveries.seed(rec)

		require.NoError(t, fx.status.ForceExpire(context.Background(), rec.ID))
		assert.Equal(t, entity.DeliveryExpired, fx.deliveries.byID(rec.ID).State)
	})

	t.Run("terminal record stays put", func(t *testing.T) {
		t.Parallel()
		fx := newStatusFixture()
		rec := dueRecord(uuid.New(), uuid.New(), entity.ChannelEmail, 3)
		rec.State = entity.DeliverySuperseded
		fx.deliveries.seed(rec)

		err := fx.status.ForceExpire(context.Background(), rec.ID)
		require.ErrorIs(t, err, entity.ErrStateConflict)
	})
}
