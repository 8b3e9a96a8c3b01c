package events

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"review-insights/pkg/logging"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher sends events to a topic exchange with the event type as
// routing key, so consumers can bind to "analysis.#" or a single type.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	log      *logging.ComponentLogger
}

func NewAMQPPublisher(url, exchange string, log *logging.Logger) (*AMQPPublisher, error) {
	if log == nil {
		log = logging.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	p, err := newAMQPPublisher(ch, exchange, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channel, exchange string, log *logging.Logger) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("error declaring exchange: %w", err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange, log: log.WithComponent("events.amqp")}, nil
}

// Publish sends each event as a persistent JSON message. Channels are not
// safe for concurrent use, so publishes are serialized.
func (p *AMQPPublisher) Publish(ctx context.Context, ev ...Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range ev {
		body, err := e.MarshalData()
		if err != nil {
			return fmt.Errorf("marshal %s: %w", e.Type(), err)
		}
		err = p.ch.PublishWithContext(ctx, p.exchange, e.Type(), false, false, amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     e.ID(),
			CorrelationId: e.RunID(),
			Timestamp:     e.Timestamp(),
			Type:          e.Type(),
			Body:          body,
		})
		if err != nil {
			p.log.Warn("publish failed", logging.String("type", e.Type()), logging.Error(err))
			return fmt.Errorf("error sending message: %w", err)
		}
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
