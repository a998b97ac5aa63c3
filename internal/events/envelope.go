// Package events publishes digest lifecycle events to an AMQP exchange.
package events

import (
	"time"

	"github.com/google/uuid"
)

// TypeSummaryCreated is emitted after a digest summary is produced
const TypeSummaryCreated = "digest.summary.created"

// Meta identifies one event
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
}

// Envelope wraps an event payload
type Envelope struct {
	Meta    Meta `json:"meta"`
	Payload any  `json:"payload"`
}

// SummaryCreated is the payload of TypeSummaryCreated
type SummaryCreated struct {
	ChatID       string `json:"chat_id"`
	SummaryID    int64  `json:"summary_id,omitempty"`
	Text         string `json:"text"`
	MessageCount int    `json:"message_count"`
	StartTime    *int64 `json:"start_time,omitempty"`
	EndTime      *int64 `json:"end_time,omitempty"`
	Model        string `json:"model,omitempty"`
	Fallback     bool   `json:"fallback"`
	FailureKind  string `json:"failure_kind,omitempty"`
	Source       string `json:"source"`
}

// NewEnvelope stamps payload with a fresh id and the current time. An empty
// correlationID is left out.
func NewEnvelope(eventType, correlationID string, payload any) Envelope {
	env := Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Type:     eventType,
			Producer: "wadigest",
			Time:     time.Now().UTC(),
		},
		Payload: payload,
	}
	if correlationID != "" {
		env.Meta.CorrelationID = &correlationID
	}
	return env
}
