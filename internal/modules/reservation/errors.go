package reservation

import (
	"errors"
	"fmt"

	"smartcampus/internal/domain"
	"smartcampus/internal/modules/resource"
	"smartcampus/internal/pkg/interval"
)

var (
	ErrInvalidInterval           = interval.ErrInvalidInterval
	ErrOutsideAvailabilityWindow = resource.ErrOutsideAvailabilityWindow
	ErrResourceNotFound          = errors.New("resource not found")
	ErrReservationNotFound       = errors.New("reservation not found")
	ErrCapacityExceeded          = errors.New("capacity exceeded")
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrForbidden                 = errors.New("forbidden")
	ErrValidation                = errors.New("validation error")
	ErrConcurrentUpdate          = errors.New("reservation was modified concurrently")
)

// CapacityError carries the availability snapshot that caused the refusal.
// It matches ErrCapacityExceeded.
type CapacityError struct {
	Availability *Availability
}

func (e *CapacityError) Error() string {
	if e.Availability == nil {
		return ErrCapacityExceeded.Error()
	}
	return fmt.Sprintf("capacity exceeded: %d of %d in use", e.Availability.InUse, e.Availability.Capacity)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacityExceeded }

// TransitionError matches ErrInvalidTransition.
type TransitionError struct {
	From domain.ReservationStatus
	To   domain.ReservationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
