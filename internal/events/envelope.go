package events

import (
	"encoding/json"
	"time"

	"smartcampus/internal/domain"
)

// Envelope is the message body written to the broker.
type Envelope struct {
	ID          string           `json:"id"`
	Type        domain.EventType `json:"type"`
	AggregateID int64            `json:"aggregate_id"`
	CreatedAt   time.Time        `json:"created_at"`
	Payload     json.RawMessage  `json:"payload"`
}

func NewEnvelope(e domain.OutboxEvent) Envelope {
	return Envelope{
		ID:          e.ID.String(),
		Type:        e.Type,
		AggregateID: e.AggregateID,
		CreatedAt:   e.CreatedAt,
		Payload:     json.RawMessage(e.Payload),
	}
}
