package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrnotify/internal/entity"
	"hrnotify/internal/service"
)

func testPolicies() service.ChannelPolicies {
	pol := service.ChannelPolicy{Enabled: true, Workers: 1, MaxAttempts: 3}
	return service.ChannelPolicies{
		entity.ChannelInApp:    pol,
		entity.ChannelEmail:    pol,
		entity.ChannelSMS:      pol,
		entity.ChannelPush:     pol,
		entity.ChannelWhatsApp: pol,
	}
}

type dispatcherFixture struct {
	dispatcher    *service.Dispatcher
	notifications *fakeNotificationStore
	deliveries    *fakeDeliveryStore
}

func newDispatcherFixture(recipients ...entity.Recipient) dispatcherFixture {
	notifications := newFakeNotificationStore()
	deliveries := newFakeDeliveryStore()
	sel := service.NewSelector(entity.MaskAll, nil)
	d := service.NewDispatcher(notifications, deliveries, newFakeRecipientStore(recipients...), sel, testPolicies(), zerolog.Nop())
	return dispatcherFixture{dispatcher: d, notifications: notifications, deliveries: deliveries}
}

func queuedNotification(recipients ...uuid.UUID) *entity.Notification {
	return &entity.Notification{
		ID:         uuid.New(),
		Type:       entity.TypeProject,
		Recipients: recipients,
		Payload:    entity.Payload{Title: "Sprint update", Body: "Milestone reached."},
		Channels:   entity.MaskInApp | entity.MaskEmail,
		Priority:   entity.PriorityNormal,
		Dispatch:   entity.DispatchQueued,
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	t.Run("fans out one record per recipient and channel", func(t *testing.T) {
		t.Parallel()
		r1, r2 := fullRecipient(), fullRecipient()
		fx := newDispatcherFixture(r1, r2)

		n := queuedNotification(r1.ID, r2.ID)
		require.NoError(t, fx.notifications.Create(context.Background(), n))

		require.NoError(t, fx.dispatcher.Dispatch(context.Background(), n.ID))

		records, err := fx.deliveries.ListByNotification(context.Background(), n.ID)
		require.NoError(t, err)
		require.Len(t, records, 4)
		for _, rec := range records {
			assert.Equal(t, entity.DeliveryQueued, rec.State, "fan-out must land in the scan set")
			assert.NotNil(t, rec.NextRetryAt, "queued records must be immediately due")
			assert.Equal(t, 3, rec.MaxAttempts)
		}

		stored, err := fx.notifications.GetByID(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.DispatchDispatched, stored.Dispatch)
	})

	t.Run("redelivery after completion is a no-op", func(t *testing.T) {
		t.Parallel()
		rcp := fullRecipient()
		fx := newDispatcherFixture(rcp)

		n := queuedNotification(rcp.ID)
		require.NoError(t, fx.notifications.Create(context.Background(), n))

		require.NoError(t, fx.dispatcher.Dispatch(context.Background(), n.ID))
		before, _ := fx.deliveries.ListByNotification(context.Background(), n.ID)

		require.NoError(t, fx.dispatcher.Dispatch(context.Background(), n.ID))
		after, _ := fx.deliveries.ListByNotification(context.Background(), n.ID)

		assert.Equal(t, len(before), len(after))
	})

	t.Run("interrupted fan-out resumes without duplicating lineages", func(t *testing.T) {
		t.Parallel()
		rcp := fullRecipient()
		fx := newDispatcherFixture(rcp)

		n := queuedNotification(rcp.ID)
		require.NoError(t, fx.notifications.Create(context.Background(), n))

		// First dispatch completed the fan-out but crashed before marking
		// the notification dispatched.
		require.NoError(t, fx.dispatcher.Dispatch(context.Background(), n.ID))
		require.NoError(t, fx.notifications.SetDispatchStatus(context.Background(), n.ID, entity.DispatchQueued))

		require.NoError(t, fx.dispatcher.Dispatch(context.Background(), n.ID))

		records, err := fx.deliveries.ListByNotification(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Len(t, records, 2, "uniqueness must hold across re-dispatch")

		stored, err := fx.notifications.GetByID(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.DispatchDispatched, stored.Dispatch)
	})

	t.Run("vanished notification acks without error", func(t *testing.T) {
		t.Parallel()
		fx := newDispatcherFixture()
		require.NoError(t, fx.dispatcher.Dispatch(context.Background(), uuid.New()))
	})
}

func TestDispatcher_HandleMessage(t *testing.T) {
	t.Parallel()

	t.Run("malformed body is dropped, not requeued", func(t *testing.T) {
		t.Parallel()
		fx := newDispatcherFixture()
		require.NoError(t, fx.dispatcher.HandleMessage(context.Background(), []byte("not json")))
	})

	t.Run("valid message dispatches", func(t *testing.T) {
		t.Parallel()
		rcp := fullRecipient()
		fx := newDispatcherFixture(rcp)

		n := queuedNotification(rcp.ID)
		require.NoError(t, fx.notifications.Create(context.Background(), n))

		body, err := json.Marshal(service.QueueMessage{NotificationID: n.ID})
		require.NoError(t, err)
		require.NoError(t, fx.dispatcher.HandleMessage(context.Background(), body))

		records, err := fx.deliveries.ListByNotification(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})
}

func TestDispatcher_Recover(t *testing.T) {
	t.Parallel()

	rcp := fullRecipient()
	fx := newDispatcherFixture(rcp)

	interrupted := queuedNotification(rcp.ID)
	require.NoError(t, fx.notifications.Create(context.Background(), interrupted))

	done := queuedNotification(rcp.ID)
	done.Dispatch = entity.DispatchDispatched
	require.NoError(t, fx.notifications.Create(context.Background(), done))

	rejected := queuedNotification(rcp.ID)
	rejected.Dispatch = entity.DispatchRejected
	require.NoError(t, fx.notifications.Create(context.Background(), rejected))

	recovered, err := fx.dispatcher.Recover(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered, "only interrupted fan-outs are re-dispatched")

	records, err := fx.deliveries.ListByNotification(context.Background(), interrupted.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
