package sender

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"hrnotify/internal/entity"
)

// SMSSender delivers notifications through an external SMS gateway.
type SMSSender struct {
	gw *gatewayClient
}

func NewSMSSender(baseURL, token string, log zerolog.Logger) *SMSSender {
	return &SMSSender{gw: newGatewayClient(baseURL, token, log.With().Str("adapter", "sms").Logger())}
}

func (s *SMSSender) Channel() entity.Channel { return entity.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, rcp entity.Recipient, n entity.Notification) error {
	const op = "sender.SMSSender.Send"

	payload := struct {
		To   string `json:"to"`
		Text string `json:"text"`
		Ref  string `json:"ref"`
	}{
		To:   rcp.Phone,
		Text: n.Payload.Body,
		Ref:  n.ID.String(),
	}

	if err := s.gw.post(ctx, "/v1/messages", payload); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
