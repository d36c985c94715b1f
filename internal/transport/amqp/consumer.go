// Package amqp binds the dispatch queue's consume side to the dispatcher.
package amqp

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"hrnotify/pkg/rabbit"
)

// MessageHandler processes one queue message. A nil return acknowledges the
// message; an error requeues it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, body []byte) error
}

// Consumer pumps the dispatch queue into a handler until the context ends.
type Consumer struct {
	client  *rabbit.Client
	handler MessageHandler
	log     zerolog.Logger
}

func NewConsumer(client *rabbit.Client, handler MessageHandler, log zerolog.Logger) *Consumer {
	return &Consumer{
		client:  client,
		handler: handler,
		log:     log.With().Str("component", "amqp_consumer").Logger(),
	}
}

// Run blocks until ctx is cancelled or the broker connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	const op = "amqp.Consumer.Run"

	c.log.Info().Msg("dispatch queue consumer started")

	if err := c.client.Consume(ctx, c.handler.HandleMessage); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.log.Info().Msg("dispatch queue consumer stopped")
	return nil
}
