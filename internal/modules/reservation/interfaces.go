package reservation

import (
	"context"

	"smartcampus/internal/domain"
	"smartcampus/internal/pkg/interval"
	"smartcampus/internal/repository"
)

// ReservationRepository defines the persistence the state machine relies on
type ReservationRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Reservation, error)
	ListByUser(ctx context.Context, userID int64, f repository.ReservationFilter) ([]domain.Reservation, error)
	ListByResource(ctx context.Context, resourceID int64, f repository.ReservationFilter) ([]domain.Reservation, error)
	ListOverlapping(ctx context.Context, resourceID int64, iv interval.Interval, excludeID int64) ([]domain.Reservation, error)
	CreateChecked(ctx context.Context, r *domain.Reservation, check repository.CheckFunc, events repository.EventsFunc) error
	RescheduleChecked(ctx context.Context, r *domain.Reservation, expectedVersion int64, check repository.CheckFunc, events repository.EventsFunc) error
	UpdateStatus(ctx context.Context, r *domain.Reservation, expectedVersion int64, events repository.EventsFunc) error
}

// ResourceDirectory resolves resources; it returns resource.ErrNotFound for unknown ids.
type ResourceDirectory interface {
	GetResource(ctx context.Context, id int64) (*domain.Resource, error)
}

// AvailabilityCache serves display reads; Get returns an error on a miss.
type AvailabilityCache interface {
	Get(ctx context.Context, resourceID int64, iv interval.Interval, dst any) error
	Set(ctx context.Context, resourceID int64, iv interval.Interval, v any) error
	Invalidate(ctx context.Context, resourceID int64) error
}

type Observer interface {
	ReservationTransition(status string)
	ReservationRefused(reason string)
	CreateRetried()
	CacheLookup(hit bool)
}

type nopObserver struct{}

func (nopObserver) ReservationTransition(string) {}
func (nopObserver) ReservationRefused(string)    {}
func (nopObserver) CreateRetried()               {}
func (nopObserver) CacheLookup(bool)             {}
