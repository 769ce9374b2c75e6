// Package notify announces newly published model generations on a message
// broker.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YuminosukeSato/ridecast/metrics"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

// RoutingKey is used for every generation announcement.
const RoutingKey = "model.generation.published"

// GenerationEvent is the message body.
type GenerationEvent struct {
	Generation  string            `json:"generation"`
	ModelDir    string            `json:"model_dir"`
	BestVariant string            `json:"best_variant"`
	BestMetrics metrics.MetricSet `json:"best_metrics"`
	PublishedAt time.Time         `json:"published_at"`
}

// Publisher sends generation events.
type Publisher interface {
	PublishGeneration(ctx context.Context, event GenerationEvent) error
	Close() error
}

// NopPublisher drops events.
type NopPublisher struct{}

func (NopPublisher) PublishGeneration(context.Context, GenerationEvent) error { return nil }
func (NopPublisher) Close() error                                             { return nil }

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes JSON events to a topic exchange.
type AMQPPublisher struct {
	exchange string
	conn     *amqp.Connection
	ch       channel
	mu       sync.Mutex
}

// DialAMQP connects to url and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open rabbitmq channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &AMQPPublisher{exchange: exchange, conn: conn, ch: ch}, nil
}

// PublishGeneration sends event as a persistent JSON message.
func (p *AMQPPublisher) PublishGeneration(ctx context.Context, event GenerationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal generation event")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.Generation,
		Timestamp:    event.PublishedAt,
		Body:         body,
	}); err != nil {
		return errors.Wrapf(err, "publish generation %s", event.Generation)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return errors.Wrap(err, "close rabbitmq channel")
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			return errors.Wrap(err, "close rabbitmq connection")
		}
	}
	return nil
}
