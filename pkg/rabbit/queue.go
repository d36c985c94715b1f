// Package rabbit wraps amqp091 with the two shapes the engine needs: a
// confirming publisher into a bounded queue (rejection is the backpressure
// signal) and a manually-acked consumer loop.
package rabbit

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPublishRejected is returned when the broker nacks a publish, which with
// x-overflow=reject-publish means the queue is at capacity.
var ErrPublishRejected = errors.New("publish rejected by broker")

type Config struct {
	URL         string
	Queue       string
	MaxLength   int
	MaxPriority uint8
	Prefetch    int
}

type Client struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func New(cfg Config) (*Client, error) {
	const op = "rabbit.New"

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: dial: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: channel: %w", op, err)
	}

	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: confirm mode: %w", op, err)
	}

	args := amqp.Table{}
	if cfg.MaxLength > 0 {
		args["x-max-length"] = int32(cfg.MaxLength)
		args["x-overflow"] = "reject-publish"
	}
	if cfg.MaxPriority > 0 {
		args["x-max-priority"] = cfg.MaxPriority
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: declare queue %q: %w", op, cfg.Queue, err)
	}

	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: qos: %w", op, err)
		}
	}

	return &Client{conn: conn, ch: ch, queue: cfg.Queue}, nil
}

// Publish sends a persistent message and waits for the broker confirm. A
// nack maps to ErrPublishRejected so callers can distinguish "queue full"
// from transport trouble.
func (c *Client) Publish(ctx context.Context, body []byte, priority uint8) error {
	const op = "rabbit.Publish"

	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, "", c.queue, true, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Priority:     priority,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%s: wait confirm: %w", op, err)
	}
	if !acked {
		return fmt.Errorf("%s: %w", op, ErrPublishRejected)
	}
	return nil
}

// Handler processes one message body. A nil return acks; an error nacks with
// requeue, so the broker redelivers (the consumer side must be idempotent).
type Handler func(ctx context.Context, body []byte) error

// Consume runs the delivery loop until ctx is cancelled or the channel closes.
func (c *Client) Consume(ctx context.Context, handle Handler) error {
	const op = "rabbit.Consume"

	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("%s: delivery channel closed", op)
			}
			if err := handle(ctx, msg.Body); err != nil {
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	const op = "rabbit.Close"

	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return fmt.Errorf("%s: channel: %w", op, err)
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("%s: connection: %w", op, err)
	}
	return nil
}
