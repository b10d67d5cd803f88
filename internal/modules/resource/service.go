package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"smartcampus/internal/domain"
	"smartcampus/internal/pkg/logger/sl"
	"smartcampus/internal/pkg/validator"
	"smartcampus/internal/repository"
)

const maxListLimit = 200

type Service struct {
	log      *slog.Logger
	repo     Repository
	schedule Schedule
	cache    CacheInvalidator
	now      func() time.Time
}

func NewService(log *slog.Logger, repo Repository, schedule Schedule, cache CacheInvalidator) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		schedule: schedule,
		cache:    cache,
		now:      time.Now,
	}
}

func (s *Service) Schedule() Schedule { return s.schedule }

func (s *Service) GetResource(ctx context.Context, id int64) (*domain.Resource, error) {
	res, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) List(ctx context.Context, q ListResourcesQuery) ([]domain.Resource, error) {
	f := repository.ResourceFilter{
		Type:            domain.ResourceType(q.Type),
		IncludeInactive: q.IncludeInactive,
		Limit:           q.Limit,
		Offset:          q.Offset,
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"type": "oneof"}}
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, &ValidationError{Fields: map[string]string{"limit": "gte=0"}}
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.repo.List(ctx, f)
}

func (s *Service) Create(ctx context.Context, actor domain.Actor, req CreateResourceRequest) (*domain.Resource, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	res := &domain.Resource{
		Name:          req.Name,
		Type:          req.Type,
		Description:   req.Description,
		Location:      req.Location,
		Capacity:      req.Capacity,
		Amenities:     req.Amenities,
		Availability:  req.Availability,
		NeedsApproval: true,
		OwnerID:       req.OwnerID,
		IsActive:      true,
	}
	if res.Availability == nil {
		res.Availability = domain.DefaultAvailability()
	}
	if req.NeedsApproval != nil {
		res.NeedsApproval = *req.NeedsApproval
	}
	if err := validateResource(res); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, res); err != nil {
		return nil, err
	}

	s.log.Info("resource created",
		slog.Int64("resource_id", res.ID),
		slog.String("type", string(res.Type)),
		slog.Int64("admin_id", actor.UserID),
	)
	return res, nil
}

// Update applies a partial update. Capacity, availability and the active flag are frozen
// while pending or approved reservations that have not ended yet reference the resource.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id int64, req UpdateResourceRequest) (*domain.Resource, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	current, err := s.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	applyUpdate(&next, req)
	if err := validateResource(&next); err != nil {
		return nil, err
	}

	guard := func(stored *domain.Resource, hasFutureActive bool) error {
		if hasFutureActive && changesBookingRules(stored, &next) {
			return ErrResourceInUse
		}
		return nil
	}

	err = s.repo.Update(ctx, &next, s.now(), guard)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.log.Warn("failed to invalidate availability cache", slog.Int64("resource_id", id), sl.Err(err))
		}
	}
	return &next, nil
}

func applyUpdate(res *domain.Resource, req UpdateResourceRequest) {
	if req.Name != nil {
		res.Name = *req.Name
	}
	if req.Type != nil {
		res.Type = *req.Type
	}
	if req.Description != nil {
		res.Description = *req.Description
	}
	if req.Location != nil {
		res.Location = *req.Location
	}
	if req.Capacity != nil {
		res.Capacity = *req.Capacity
	}
	if req.Amenities != nil {
		res.Amenities = req.Amenities
	}
	if req.Availability != nil {
		res.Availability = req.Availability
	}
	if req.NeedsApproval != nil {
		res.NeedsApproval = *req.NeedsApproval
	}
	if req.OwnerID != nil {
		owner := *req.OwnerID
		res.OwnerID = &owner
	}
	if req.IsActive != nil {
		res.IsActive = *req.IsActive
	}
}

func changesBookingRules(a, b *domain.Resource) bool {
	return a.Capacity != b.Capacity ||
		a.IsActive != b.IsActive ||
		!reflect.DeepEqual(a.Availability, b.Availability)
}

func validateResource(res *domain.Resource) error {
	fields := validator.Validate(res)
	if fields == nil {
		fields = map[string]string{}
	}
	if !res.Type.Valid() {
		fields["Resource.Type"] = "oneof"
	}
	for day, w := range res.Availability {
		open, err1 := validator.ParseClock(w.Start)
		closing, err2 := validator.ParseClock(w.End)
		if err1 == nil && err2 == nil && w.Available && closing <= open {
			fields[fmt.Sprintf("Resource.Availability[%s]", day)] = "end must be after start"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
