package domain

import (
	"time"

	"smartcampus/internal/pkg/interval"
)

type ReservationStatus string

const (
	ReservationPending  ReservationStatus = "pending"
	ReservationApproved ReservationStatus = "approved"
	ReservationRejected ReservationStatus = "rejected"
	ReservationCanceled ReservationStatus = "canceled"
)

// ActiveStatuses are the statuses that consume resource capacity.
var ActiveStatuses = []ReservationStatus{ReservationPending, ReservationApproved}

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationApproved, ReservationRejected, ReservationCanceled:
		return true
	}
	return false
}

func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationRejected || s == ReservationCanceled
}

func (s ReservationStatus) IsActive() bool {
	return s == ReservationPending || s == ReservationApproved
}

type Reservation struct {
	ID         int64             `json:"id"`
	ResourceID int64             `json:"resource_id"`
	UserID     int64             `json:"user_id"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Purpose    string            `json:"purpose"`
	Status     ReservationStatus `json:"status"`
	ApprovedBy *int64            `json:"approved_by,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	Version    int64             `json:"version"`
	DecidedAt  *time.Time        `json:"decided_at,omitempty"`
	CanceledAt *time.Time        `json:"canceled_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (r *Reservation) Interval() interval.Interval {
	return interval.Interval{Start: r.StartTime, End: r.EndTime}
}
