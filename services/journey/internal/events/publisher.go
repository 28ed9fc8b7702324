// Package events forwards journey state transitions to an AMQP topic
// exchange so other systems can react to them. Delivery is best effort: the
// transition has already been persisted by the time it is published, and a
// broker outage must not fail user-facing operations.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Discovita/testing-grounds/pkg/domain"
)

// Publisher emits journey events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev domain.JourneyEvent)
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.JourneyEvent) {}
func (NopPublisher) Close() error                                 { return nil }

// AMQPPublisher publishes events to a durable topic exchange. The routing
// key is the event kind, so consumers can bind to e.g. "journey_completed"
// or "#".
type AMQPPublisher struct {
	exchange string
	logger   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = "journey.events"
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{exchange: exchange, logger: logger, conn: conn, ch: ch}, nil
}

// Publish sends the event as JSON. Failures are logged and swallowed.
func (p *AMQPPublisher) Publish(ctx context.Context, ev domain.JourneyEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("encode journey event", "event_id", ev.ID, "error", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, string(ev.Kind), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   ev.ID,
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
	if err != nil {
		p.logger.Error("publish journey event",
			"event_id", ev.ID,
			"kind", string(ev.Kind),
			"error", err,
		)
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
