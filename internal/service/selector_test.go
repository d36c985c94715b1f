package service_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"hrnotify/internal/entity"
	"hrnotify/internal/service"
)

func fullRecipient() entity.Recipient {
	return entity.Recipient{
		ID:          uuid.New(),
		Email:       "e.ramos@example.com",
		Phone:       "+34600111222",
		DeviceToken: "dev-token-1",
		WhatsApp:    "+34600111222",
		Channels:    entity.MaskAll,
	}
}

func TestSelector_Resolve(t *testing.T) {
	t.Parallel()

	policies := []entity.TypePolicy{
		{Type: entity.TypePayroll, ForcedChannels: entity.MaskEmail, Suppressible: true},
		{Type: entity.TypeGrievance, ForcedChannels: entity.MaskInApp, Suppressible: false},
	}

	t.Run("intersection of request, opt-in and enabled", func(t *testing.T) {
		t.Parallel()
		sel := service.NewSelector(entity.MaskInApp|entity.MaskEmail|entity.MaskSMS, policies)

		rcp := fullRecipient()
		rcp.Channels = entity.MaskInApp | entity.MaskSMS

		n := &entity.Notification{Type: entity.TypeGeneral, Channels: entity.MaskAll}
		assert.Equal(t, entity.MaskInApp|entity.MaskSMS, sel.Resolve(n, &rcp))
	})

	t.Run("channel without an address is dropped", func(t *testing.T) {
		t.Parallel()
		sel := service.NewSelector(entity.MaskAll, policies)

		rcp := fullRecipient()
		rcp.Phone = ""
		rcp.DeviceToken = ""

		n := &entity.Notification{Type: entity.TypeGeneral, Channels: entity.MaskSMS | entity.MaskPush | entity.MaskEmail}
		assert.Equal(t, entity.MaskEmail, sel.Resolve(n, &rcp))
	})

	t.Run("non-suppressible policy overrides a mute", func(t *testing.T) {
		t.Parallel()
		sel := service.NewSelector(entity.MaskAll, policies)

		rcp := fullRecipient()
		rcp.Channels = entity.MaskEmail // in-app muted

		n := &entity.Notification{Type: entity.TypeGrievance, Channels: entity.MaskEmail}
		got := sel.Resolve(n, &rcp)
		assert.True(t, got.Has(entity.ChannelInApp), "grievance must reach in-app despite the mute")
		assert.True(t, got.Has(entity.ChannelEmail))
	})

	t.Run("suppressible policy respects a mute", func(t *testing.T) {
		t.Parallel()
		sel := service.NewSelector(entity.MaskAll, policies)

		rcp := fullRecipient()
		rcp.Channels = entity.MaskInApp // email muted

		n := &entity.Notification{Type: entity.TypePayroll, Channels: entity.MaskInApp}
		got := sel.Resolve(n, &rcp)
		assert.False(t, got.Has(entity.ChannelEmail), "muted suppressible channel must stay muted")
		assert.Equal(t, entity.MaskInApp, got)
	})

	t.Run("forced channel still needs an address", func(t *testing.T) {
		t.Parallel()
		sel := service.NewSelector(entity.MaskAll, policies)

		rcp := fullRecipient()
		rcp.Channels = entity.MaskNone
		rcp.Email = ""

		n := &entity.Notification{Type: entity.TypeGrievance, Channels: entity.MaskEmail}
		// In-app is forced and needs no address; email is muted and stays out.
		assert.Equal(t, entity.MaskInApp, sel.Resolve(n, &rcp))
	})

	t.Run("disabled channel never resolves", func(t *testing.T) {
		t.Parallel()
		sel := service.NewSelector(entity.MaskInApp, policies)

		rcp := fullRecipient()
		n := &entity.Notification{Type: entity.TypePayroll, Channels: entity.MaskAll}
		got := sel.Resolve(n, &rcp)
		assert.False(t, got.Has(entity.ChannelEmail), "forced but disabled channel must not resolve")
		assert.Equal(t, entity.MaskInApp, got)
	})
}
