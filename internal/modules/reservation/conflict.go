package reservation

import (
	"context"
	"errors"
	"log/slog"

	"smartcampus/internal/cache"
	"smartcampus/internal/domain"
	"smartcampus/internal/modules/resource"
	"smartcampus/internal/pkg/interval"
	"smartcampus/internal/pkg/logger/sl"
)

// Availability is the answer of the conflict detector for one resource and interval.
// InUse is the largest number of active reservations overlapping any instant of the interval.
type Availability struct {
	ResourceID int64                `json:"resource_id"`
	Interval   interval.Interval    `json:"interval"`
	Available  bool                 `json:"available"`
	Capacity   int                  `json:"capacity"`
	InUse      int                  `json:"in_use"`
	Free       int                  `json:"free"`
	Conflicts  []domain.Reservation `json:"conflicts"`
}

func evaluate(res *domain.Resource, iv interval.Interval, overlapping []domain.Reservation) *Availability {
	capacity := resource.EffectiveCapacity(res)

	others := make([]interval.Interval, 0, len(overlapping))
	for i := range overlapping {
		others = append(others, overlapping[i].Interval())
	}
	inUse := interval.PeakConcurrency(iv, others)

	free := capacity - inUse
	if free < 0 {
		free = 0
	}
	if overlapping == nil {
		overlapping = []domain.Reservation{}
	}
	return &Availability{
		ResourceID: res.ID,
		Interval:   iv,
		Available:  inUse < capacity,
		Capacity:   capacity,
		InUse:      inUse,
		Free:       free,
		Conflicts:  overlapping,
	}
}

// decide runs the full rule set against a resource and the reservations overlapping iv.
// The same function backs the pre-check and the locked commit-time check.
func (s *Service) decide(res *domain.Resource, iv interval.Interval, overlapping []domain.Reservation) (*Availability, error) {
	if !res.IsActive {
		return nil, ErrResourceNotFound
	}
	if err := s.schedule.Check(res, iv); err != nil {
		return nil, err
	}
	a := evaluate(res, iv, overlapping)
	if !a.Available {
		return a, &CapacityError{Availability: a}
	}
	return a, nil
}

func (s *Service) bookableResource(ctx context.Context, resourceID int64) (*domain.Resource, error) {
	res, err := s.resources.GetResource(ctx, resourceID)
	if errors.Is(err, resource.ErrNotFound) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	if !res.IsActive {
		return nil, ErrResourceNotFound
	}
	return res, nil
}

// CheckAvailability reports whether iv can be booked on the resource right now.
// A full resource is not an error: Available is false and Conflicts lists the overlaps.
func (s *Service) CheckAvailability(ctx context.Context, resourceID int64, iv interval.Interval) (*Availability, error) {
	return s.checkAvailability(ctx, resourceID, iv, 0)
}

func (s *Service) checkAvailability(ctx context.Context, resourceID int64, iv interval.Interval, excludeID int64) (*Availability, error) {
	res, err := s.bookableResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	overlapping, err := s.reservations.ListOverlapping(ctx, resourceID, iv, excludeID)
	if err != nil {
		return nil, err
	}

	a, err := s.decide(res, iv, overlapping)
	if errors.Is(err, ErrCapacityExceeded) {
		return a, nil
	}
	return a, err
}

// CheckConflicts is CheckAvailability driven by a request body, optionally ignoring
// one of the caller's own reservations.
func (s *Service) CheckConflicts(ctx context.Context, req CheckConflictsRequest) (*Availability, error) {
	iv, err := interval.New(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	return s.checkAvailability(ctx, req.ResourceID, iv, req.ExcludeReservationID)
}

// CachedAvailability serves display reads. Answers may be stale by up to the cache TTL;
// writes through this service invalidate the resource's entries immediately.
func (s *Service) CachedAvailability(ctx context.Context, resourceID int64, iv interval.Interval) (*Availability, error) {
	if s.cache == nil {
		return s.CheckAvailability(ctx, resourceID, iv)
	}

	var cached Availability
	err := s.cache.Get(ctx, resourceID, iv, &cached)
	if err == nil {
		s.observer.CacheLookup(true)
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn("availability cache read failed", slog.Int64("resource_id", resourceID), sl.Err(err))
	}
	s.observer.CacheLookup(false)

	a, err := s.CheckAvailability(ctx, resourceID, iv)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, resourceID, iv, a); err != nil {
		s.log.Warn("availability cache write failed", slog.Int64("resource_id", resourceID), sl.Err(err))
	}
	return a, nil
}
