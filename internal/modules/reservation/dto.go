package reservation

import "time"

type CreateReservationRequest struct {
	ResourceID int64     `json:"resource_id" binding:"required"`
	StartTime  time.Time `json:"start_time" binding:"required"`
	EndTime    time.Time `json:"end_time" binding:"required"`
	Purpose    string    `json:"purpose" binding:"required"`
	Notes      string    `json:"notes"`
}

// UpdateReservationRequest moves a pending reservation. An empty purpose keeps the old one.
type UpdateReservationRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
	Purpose   string    `json:"purpose"`
}

type DecisionRequest struct {
	Notes string `json:"notes"`
}

type CheckConflictsRequest struct {
	ResourceID           int64     `json:"resource_id" binding:"required"`
	StartTime            time.Time `json:"start_time" binding:"required"`
	EndTime              time.Time `json:"end_time" binding:"required"`
	ExcludeReservationID int64     `json:"exclude_reservation_id"`
}

type ListReservationsQuery struct {
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
