package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig describes the broker connection and declared queues.
type RabbitMQConfig struct {
	URL     string
	Durable bool
}

// RabbitMQPublisher publishes to one durable queue per topic with publisher
// confirms. The marker is "queue/deliveryTag"; tags increase per channel.
type RabbitMQPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
}

// NewRabbitMQPublisher dials the broker, enables confirms and declares a queue
// per topic.
func NewRabbitMQPublisher(cfg RabbitMQConfig, topics ...Topic) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq URL is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	for _, t := range topics {
		if _, err := ch.QueueDeclare(t.String(), cfg.Durable, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", t, err)
		}
	}
	return &RabbitMQPublisher{conn: conn, ch: ch}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, topic Topic, env Envelope) (SequenceMarker, error) {
	p.mu.Lock()
	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", topic.String(), false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.ID,
		Type:          string(env.Kind),
		CorrelationId: env.Key,
		Body:          env.Payload,
	})
	p.mu.Unlock()
	if err != nil {
		return "", Failed(err, "rabbitmq publish failed")
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return "", Failed(err, "rabbitmq confirm failed")
	}
	if !acked {
		return "", Failed(errors.New("broker nacked message"), "rabbitmq publish rejected")
	}
	return SequenceMarker(fmt.Sprintf("%s/%d", topic, dc.DeliveryTag)), nil
}

// Health reports whether the connection is open.
func (p *RabbitMQPublisher) Health(context.Context) error {
	if p.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	_ = p.ch.Close()
	return p.conn.Close()
}
