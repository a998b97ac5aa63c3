package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(TypeSummaryCreated, "", map[string]int{"n": 1})
	assert.NotEmpty(t, env.Meta.ID)
	assert.Equal(t, TypeSummaryCreated, env.Meta.Type)
	assert.Nil(t, env.Meta.CorrelationID)
	assert.False(t, env.Meta.Time.IsZero())

	other := NewEnvelope(TypeSummaryCreated, "chat", nil)
	assert.NotEqual(t, env.Meta.ID, other.Meta.ID)
	require.NotNil(t, other.Meta.CorrelationID)
	assert.Equal(t, "chat", *other.Meta.CorrelationID)
}

func TestPublishSummary(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(Config{Exchange: "wadigest"}, zerolog.Nop(), func() (channel, error) { return ch, nil })

	start := int64(1700000000)
	err := p.PublishSummary(context.Background(), SummaryCreated{ChatID: "1@g.us", Text: "digest", MessageCount: 3, StartTime: &start, Source: "gateway"})
	require.NoError(t, err)

	assert.Equal(t, "wadigest", ch.exchange)
	assert.Equal(t, TypeSummaryCreated, ch.key)
	assert.True(t, ch.closed)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "1@g.us", ch.msg.CorrelationId)
	assert.NotEmpty(t, ch.msg.MessageId)

	var body struct {
		Meta    Meta           `json:"meta"`
		Payload SummaryCreated `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(ch.msg.Body, &body))
	assert.Equal(t, ch.msg.MessageId, body.Meta.ID)
	assert.Equal(t, "digest", body.Payload.Text)
	assert.Equal(t, 3, body.Payload.MessageCount)
	assert.Equal(t, start, *body.Payload.StartTime)
}

func TestPublishErrors(t *testing.T) {
	p := newPublisher(Config{Exchange: "x", RoutingKey: "custom"}, zerolog.Nop(), func() (channel, error) {
		return nil, errors.New("connection closed")
	})
	err := p.PublishSummary(context.Background(), SummaryCreated{ChatID: "1@g.us"})
	assert.ErrorContains(t, err, "failed to open channel")

	ch := &fakeChannel{err: errors.New("nack")}
	p = newPublisher(Config{Exchange: "x", RoutingKey: "custom"}, zerolog.Nop(), func() (channel, error) { return ch, nil })
	err = p.PublishSummary(context.Background(), SummaryCreated{ChatID: "1@g.us"})
	assert.ErrorContains(t, err, "nack")
	assert.Equal(t, "custom", ch.key)
}

func TestDialRequiresURL(t *testing.T) {
	_, err := Dial(context.Background(), Config{})
	assert.Error(t, err)
}
