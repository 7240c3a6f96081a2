package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/kirinyoku/roster-go/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends order.completed notices. The broker connection is opened
// on first use and dropped after a failed publish so the next call redials.
type Publisher struct {
	mu     sync.Mutex
	dial   func() (Channel, func() error, error)
	ch     Channel
	closer func() error
	queue  string
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewPublisher(url string, logger *slog.Logger) *Publisher {
	p := newPublisher(nil, logger)
	p.dial = func() (Channel, func() error, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("channel open: %w", err)
		}
		if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("queue declare: %w", err)
		}
		return ch, conn.Close, nil
	}
	return p
}

func newPublisher(dial func() (Channel, func() error, error), logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		dial:   dial,
		queue:  CompletedQueue,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
}

// MessageID is the broker message id of the completion notice of orderID.
// Consumers dedupe on it.
func MessageID(orderID int64) string {
	return fmt.Sprintf("order-%d-completed", orderID)
}

func (p *Publisher) OrderCompleted(ctx context.Context, order *domain.Order) error {
	const op = "queue.Publisher.OrderCompleted"

	now := p.clock.Now().UTC()
	body, err := json.Marshal(OrderCompletedEvent{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		LineItems:   len(order.LineItems),
		CompletedAt: now,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		ch, closer, err := p.dial()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		p.ch, p.closer = ch, closer
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    MessageID(order.ID),
		Timestamp:    now,
		Type:         CompletedQueue,
		Body:         body,
	}

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.resetLocked()
		return fmt.Errorf("%s: %w", op, err)
	}

	p.logger.Debug("completion notice published", "order_id", order.ID)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetLocked()
}

func (p *Publisher) resetLocked() error {
	if p.ch == nil {
		return nil
	}
	_ = p.ch.Close()
	var err error
	if p.closer != nil {
		err = p.closer()
	}
	p.ch, p.closer = nil, nil
	return err
}

// Disabled is the notifier used when no broker is configured.
type Disabled struct{}

func (Disabled) OrderCompleted(ctx context.Context, order *domain.Order) error {
	return nil
}
