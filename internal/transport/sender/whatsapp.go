package sender

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"hrnotify/internal/entity"
)

// WhatsAppSender delivers notifications through a WhatsApp Business gateway.
type WhatsAppSender struct {
	gw *gatewayClient
}

func NewWhatsAppSender(baseURL, token string, log zerolog.Logger) *WhatsAppSender {
	return &WhatsAppSender{gw: newGatewayClient(baseURL, token, log.With().Str("adapter", "whatsapp").Logger())}
}

func (s *WhatsAppSender) Channel() entity.Channel { return entity.ChannelWhatsApp }

func (s *WhatsAppSender) Send(ctx context.Context, rcp entity.Recipient, n entity.Notification) error {
	const op = "sender.WhatsAppSender.Send"

	payload := struct {
		To    string `json:"to"`
		Title string `json:"title"`
		Body  string `json:"body"`
		Ref   string `json:"ref"`
	}{
		To:    rcp.WhatsApp,
		Title: n.Payload.Title,
		Body:  n.Payload.Body,
		Ref:   n.ID.String(),
	}

	if err := s.gw.post(ctx, "/v1/whatsapp/messages", payload); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
