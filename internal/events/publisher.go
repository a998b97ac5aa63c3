package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/solvaholic/wadigest/internal/logger"
	"github.com/solvaholic/wadigest/internal/retry"
)

// Publisher sends envelopes to a routing key
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// Config holds the broker settings
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string // used by PublishSummary
}

// channel is the part of *amqp.Channel the publisher uses
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes JSON envelopes as persistent messages on a topic
// exchange. A channel is opened per publish.
type AMQPPublisher struct {
	conn     *amqp.Connection
	open     func() (channel, error)
	exchange string
	key      string
	log      zerolog.Logger
}

// Dial connects to the broker, retrying with backoff, and declares the
// exchange
func Dial(ctx context.Context, cfg Config) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	log := logger.Component("events")

	var conn *amqp.Connection
	policy := retry.Policy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	err := policy.Do(ctx, func(ctx context.Context) error {
		c, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Warn().Err(err).Msg("Broker dial failed")
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	p := newPublisher(cfg, log, func() (channel, error) { return conn.Channel() })
	p.conn = conn
	return p, nil
}

func newPublisher(cfg Config, log zerolog.Logger, open func() (channel, error)) *AMQPPublisher {
	key := cfg.RoutingKey
	if key == "" {
		key = TypeSummaryCreated
	}
	return &AMQPPublisher{open: open, exchange: cfg.Exchange, key: key, log: log}
}

// Publish sends env to key
func (p *AMQPPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.Meta.ID,
		Type:         env.Meta.Type,
		Timestamp:    env.Meta.Time,
		Body:         body,
	}
	if env.Meta.CorrelationID != nil {
		msg.CorrelationId = *env.Meta.CorrelationID
	}

	if err := ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", env.Meta.Type, err)
	}
	p.log.Info().Str("exchange", p.exchange).Str("key", key).Str("id", env.Meta.ID).Msg("Published event")
	return nil
}

// PublishSummary wraps s in an envelope and publishes it to the configured
// routing key. The chat id is the correlation id.
func (p *AMQPPublisher) PublishSummary(ctx context.Context, s SummaryCreated) error {
	return p.Publish(ctx, p.key, NewEnvelope(TypeSummaryCreated, s.ChatID, s))
}

// Close closes the broker connection
func (p *AMQPPublisher) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
