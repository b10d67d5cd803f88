package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventReservationCreated     EventType = "reservation.created"
	EventReservationApproved    EventType = "reservation.approved"
	EventReservationRejected    EventType = "reservation.rejected"
	EventReservationCanceled    EventType = "reservation.canceled"
	EventReservationRescheduled EventType = "reservation.rescheduled"
)

type EventStatus string

const (
	EventNew  EventStatus = "new"
	EventDone EventStatus = "done"
)

// OutboxEvent is written in the same transaction as the state change it describes.
type OutboxEvent struct {
	ID          uuid.UUID   `json:"id"`
	Type        EventType   `json:"type"`
	AggregateID int64       `json:"aggregate_id"`
	Payload     []byte      `json:"payload"`
	Status      EventStatus `json:"status"`
	Attempts    int         `json:"attempts"`
	CreatedAt   time.Time   `json:"created_at"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
}

// ReservationEvent is the payload published for every reservation transition.
type ReservationEvent struct {
	ReservationID int64             `json:"reservation_id"`
	ResourceID    int64             `json:"resource_id"`
	UserID        int64             `json:"user_id"`
	ActorID       int64             `json:"actor_id"`
	Status        ReservationStatus `json:"status"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Notes         string            `json:"notes,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
