package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/uticket/backend/internal/domain"
	"go.uber.org/zap"
)

// ListingHandler processes one listing event.
type ListingHandler func(ctx context.Context, event domain.ListingCreatedEvent) error

// Consumer runs the new-listing fan-out off the listing queue.
type Consumer struct {
	url     string
	queue   string
	handler ListingHandler
	logger  *zap.Logger
}

func NewConsumer(url, queue string, handler ListingHandler, logger *zap.Logger) *Consumer {
	return &Consumer{url: url, queue: queue, handler: handler, logger: logger}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff
// when the broker goes away.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("listing consumer failed to dial broker",
				zap.Error(err),
				zap.Duration("retry_in", backoff),
			)
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("listing consumer loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.logger.Warn("listing consumer failed to set QoS", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.handle(ctx, d.Body); err != nil {
			c.logger.Error("listing event rejected", zap.String("message_id", d.MessageId), zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	event, err := decodeListingCreated(body)
	if err != nil {
		return err
	}
	return c.handler(ctx, event)
}

func decodeListingCreated(body []byte) (domain.ListingCreatedEvent, error) {
	var event domain.ListingCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("unmarshal: %w", err)
	}
	if event.ListingID == "" || event.SellerID == "" {
		return event, errors.New("listing event missing listingId or sellerId")
	}
	return event, nil
}
