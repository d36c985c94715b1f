package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrnotify/internal/entity"
	"hrnotify/internal/metric"
	"hrnotify/internal/service"
	"hrnotify/pkg/rabbit"
)

func newIngressFixture(queue *fakeQueue, recipients ...entity.Recipient) (*service.Ingress, *fakeNotificationStore) {
	notifications := newFakeNotificationStore()
	sel := service.NewSelector(entity.MaskAll, nil)
	ing := service.NewIngress(notifications, newFakeRecipientStore(recipients...), sel, queue, metric.New(), zerolog.Nop())
	return ing, notifications
}

func validSubmit(recipients ...uuid.UUID) service.SubmitRequest {
	return service.SubmitRequest{
		Type:       entity.TypeLeave,
		Recipients: recipients,
		Title:      "Leave approved",
		Body:       "Your leave request was approved.",
		Channels:   entity.MaskInApp | entity.MaskEmail,
		Priority:   entity.PriorityNormal,
	}
}

func TestIngress_Submit(t *testing.T) {
	t.Parallel()

	t.Run("accepts and publishes a valid submission", func(t *testing.T) {
		t.Parallel()
		rcp := fullRecipient()
		queue := &fakeQueue{}
		ing, notifications := newIngressFixture(queue, rcp)

		id, err := ing.Submit(context.Background(), validSubmit(rcp.ID))
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, id)

		stored, err := notifications.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, entity.DispatchQueued, stored.Dispatch)

		require.Equal(t, 1, queue.count())
		var msg service.QueueMessage
		require.NoError(t, json.Unmarshal(queue.published[0], &msg))
		assert.Equal(t, id, msg.NotificationID)
	})

	t.Run("rejects an empty recipient list", func(t *testing.T) {
		t.Parallel()
		queue := &fakeQueue{}
		ing, notifications := newIngressFixture(queue)

		_, err := ing.Submit(context.Background(), validSubmit())
		require.ErrorIs(t, err, entity.ErrEmptyRecipients)
		assert.Zero(t, queue.count())
		assert.Empty(t, notifications.notifications)
	})

	t.Run("rejects unknown recipients", func(t *testing.T) {
		t.Parallel()
		ing, _ := newIngressFixture(&fakeQueue{}, fullRecipient())

		_, err := ing.Submit(context.Background(), validSubmit(uuid.New()))
		require.ErrorIs(t, err, entity.ErrRecipientNotFound)
	})

	t.Run("rejects an unknown type", func(t *testing.T) {
		t.Parallel()
		rcp := fullRecipient()
		ing, _ := newIngressFixture(&fakeQueue{}, rcp)

		req := validSubmit(rcp.ID)
		req.Type = "LUNCH_MENU"
		_, err := ing.Submit(context.Background(), req)
		require.ErrorIs(t, err, entity.ErrInvalidData)
	})

	t.Run("rejects an empty channel mask", func(t *testing.T) {
		t.Parallel()
		rcp := fullRecipient()
		ing, _ := newIngressFixture(&fakeQueue{}, rcp)

		req := validSubmit(rcp.ID)
		req.Channels = entity.MaskNone
		_, err := ing.Submit(context.Background(), req)
		require.ErrorIs(t, err, entity.ErrNoChannels)
	})

	t.Run("rejects a deadline already in the past", func(t *testing.T) {
		t.Parallel()
		rcp := fullRecipient()
		ing, _ := newIngressFixture(&fakeQueue{}, rcp)

		past := time.Now().UTC().Add(-time.Hour)
		req := validSubmit(rcp.ID)
		req.ExpiresAt = &past
		_, err := ing.Submit(context.Background(), req)
		require.ErrorIs(t, err, entity.ErrInvalidData)
	})

	t.Run("rejects when no recipient resolves to any channel", func(t *testing.T) {
		t.Parallel()
		rcp := fullRecipient()
		rcp.Channels = entity.MaskNone
		queue := &fakeQueue{}
		ing, notifications := newIngressFixture(queue, rcp)

		_, err := ing.Submit(context.Background(), validSubmit(rcp.ID))
		require.ErrorIs(t, err, entity.ErrNoChannels)
		assert.Zero(t, queue.count())
		assert.Empty(t, notifications.notifications)
	})

	t.Run("full queue surfaces backpressure and marks the row rejected", func(t *testing.T) {
		t.Parallel()
		rcp := fullRecipient()
		queue := &fakeQueue{err: rabbit.ErrPublishRejected}
		ing, notifications := newIngressFixture(queue, rcp)

		_, err := ing.Submit(context.Background(), validSubmit(rcp.ID))
		require.ErrorIs(t, err, entity.ErrQueueFull)

		// The audit row stays but is excluded from crash recovery.
		for _, n := range notifications.notifications {
			assert.Equal(t, entity.DispatchRejected, n.Dispatch)
		}
	})
}
