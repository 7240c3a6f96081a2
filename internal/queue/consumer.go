package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/roster-go/internal/repository"
	"github.com/kirinyoku/roster-go/internal/service/orders"
	"github.com/kirinyoku/roster-go/internal/service/roster"
	amqp "github.com/rabbitmq/amqp091-go"
)

const maxReconnectBackoff = 30 * time.Second

type Processor interface {
	ProcessOrderByID(ctx context.Context, scope *roster.Scope, orderID int64) (orders.Result, error)
}

type disposition int

const (
	ack disposition = iota
	requeue
	reject
)

// Consumer turns order status change messages into ProcessOrder runs.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	proc     Processor
	logger   *slog.Logger
}

func NewConsumer(url, queue string, proc Processor, logger *slog.Logger) *Consumer {
	if queue == "" {
		queue = DefaultTriggerQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		url:      url,
		queue:    queue,
		prefetch: 20,
		proc:     proc,
		logger:   logger,
	}
}

// Run consumes until ctx is done, reconnecting with backoff whenever the
// broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("amqp dial failed", "queue", c.queue, "retry_in", backoff, "error", err)
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxReconnectBackoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("amqp consume loop ended, reconnecting", "queue", c.queue, "error", err)
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.logger.Warn("amqp set qos failed", "error", err)
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.logger.Info("consuming order triggers", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.settle(d, c.handle(ctx, d.Body, d.Redelivered))
		}
	}
}

func (c *Consumer) settle(d amqp.Delivery, disp disposition) {
	var err error
	switch disp {
	case ack:
		err = d.Ack(false)
	case requeue:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("amqp settle failed", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

// handle processes one trigger body. Unreadable messages are rejected.
// Store outages are requeued once; the periodic sweep picks up anything
// rejected after that.
func (c *Consumer) handle(ctx context.Context, body []byte, redelivered bool) disposition {
	var ev StatusChangedEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.OrderID <= 0 {
		c.logger.Warn("rejecting malformed order trigger", "body", string(body), "error", err)
		return reject
	}

	res, err := c.proc.ProcessOrderByID(context.WithoutCancel(ctx), roster.NewScope(), ev.OrderID)
	switch {
	case err == nil:
		c.logger.Debug("order trigger handled", "order_id", ev.OrderID, "outcome", res.Outcome)
		return ack
	case errors.Is(err, orders.ErrOrderNotFound):
		c.logger.Info("order trigger for unknown order", "order_id", ev.OrderID)
		return ack
	case repository.IsUnavailable(err) && !redelivered:
		c.logger.Warn("order store unavailable, requeueing trigger", "order_id", ev.OrderID, "error", err)
		return requeue
	default:
		c.logger.Warn("order trigger failed", "order_id", ev.OrderID, "error", err)
		return reject
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
