package sender

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"hrnotify/internal/entity"
)

// PushSender delivers notifications through a mobile push gateway.
type PushSender struct {
	gw *gatewayClient
}

func NewPushSender(baseURL, token string, log zerolog.Logger) *PushSender {
	return &PushSender{gw: newGatewayClient(baseURL, token, log.With().Str("adapter", "push").Logger())}
}

func (s *PushSender) Channel() entity.Channel { return entity.ChannelPush }

func (s *PushSender) Send(ctx context.Context, rcp entity.Recipient, n entity.Notification) error {
	const op = "sender.PushSender.Send"

	payload := struct {
		DeviceToken string            `json:"device_token"`
		Title       string            `json:"title"`
		Body        string            `json:"body"`
		Data        map[string]string `json:"data,omitempty"`
		Ref         string            `json:"ref"`
	}{
		DeviceToken: rcp.DeviceToken,
		Title:       n.Payload.Title,
		Body:        n.Payload.Body,
		Data:        n.Payload.Meta,
		Ref:         n.ID.String(),
	}

	if err := s.gw.post(ctx, "/v1/push", payload); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
