package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"smartcampus/internal/domain"
	"smartcampus/internal/modules/resource"
	"smartcampus/internal/pkg/interval"
	"smartcampus/internal/pkg/logger/sl"
	"smartcampus/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Config struct {
	// CreateAttempts bounds retries of create/reschedule after transient database conflicts.
	CreateAttempts int
	// StatusAttempts bounds re-fetches after losing a version race on a status change.
	StatusAttempts int
}

type Service struct {
	log          *slog.Logger
	reservations ReservationRepository
	resources    ResourceDirectory
	schedule     resource.Schedule
	cache        AvailabilityCache
	observer     Observer
	locks        *keyLock
	cfg          Config
	now          func() time.Time
}

// NewService wires the state machine. cache and observer may be nil.
func NewService(
	log *slog.Logger,
	reservations ReservationRepository,
	resources ResourceDirectory,
	schedule resource.Schedule,
	cache AvailabilityCache,
	observer Observer,
	cfg Config,
) *Service {
	if observer == nil {
		observer = nopObserver{}
	}
	if cfg.CreateAttempts < 1 {
		cfg.CreateAttempts = 1
	}
	if cfg.StatusAttempts < 1 {
		cfg.StatusAttempts = 1
	}
	return &Service{
		log:          log,
		reservations: reservations,
		resources:    resources,
		schedule:     schedule,
		cache:        cache,
		observer:     observer,
		locks:        newKeyLock(),
		cfg:          cfg,
		now:          time.Now,
	}
}

// Create books iv on a resource. The capacity check is repeated under the resource lock
// at commit time; a reservation is pending unless the resource needs no approval.
func (s *Service) Create(ctx context.Context, actor domain.Actor, req CreateReservationRequest) (*domain.Reservation, error) {
	const op = "reservation.Service.Create"
	log := s.log.With(
		slog.String("op", op),
		slog.Int64("resource_id", req.ResourceID),
		slog.Int64("user_id", actor.UserID),
	)

	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		return nil, ErrValidation
	}
	iv, err := interval.New(req.StartTime, req.EndTime)
	if err != nil {
		s.observer.ReservationRefused("invalid_interval")
		return nil, err
	}

	pre, err := s.CheckAvailability(ctx, req.ResourceID, iv)
	if err != nil {
		s.refused(err)
		return nil, err
	}
	if !pre.Available {
		s.refused(ErrCapacityExceeded)
		return nil, &CapacityError{Availability: pre}
	}

	var r *domain.Reservation
	for attempt := 1; ; attempt++ {
		r = &domain.Reservation{
			ResourceID: req.ResourceID,
			UserID:     actor.UserID,
			StartTime:  iv.Start,
			EndTime:    iv.End,
			Purpose:    purpose,
			Notes:      strings.TrimSpace(req.Notes),
			Status:     domain.ReservationPending,
		}

		var snapshot *Availability
		err = s.commitCreate(ctx, actor, r, iv, &snapshot)
		if err == nil {
			break
		}
		if isRetryable(err) {
			if attempt < s.cfg.CreateAttempts {
				s.observer.CreateRetried()
				log.Warn("transient conflict, retrying", slog.Int("attempt", attempt), sl.Err(err))
				continue
			}
			log.Warn("giving up after transient conflicts", slog.Int("attempts", attempt), sl.Err(err))
			s.refused(ErrCapacityExceeded)
			return nil, &CapacityError{Availability: snapshot}
		}

		err = mapRepoError(err, ErrResourceNotFound)
		s.refused(err)
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, r.ResourceID)
	s.observer.ReservationTransition(string(r.Status))
	log.Info("reservation created", slog.Int64("reservation_id", r.ID), slog.String("status", string(r.Status)))
	return r, nil
}

func (s *Service) commitCreate(ctx context.Context, actor domain.Actor, r *domain.Reservation, iv interval.Interval, snapshot **Availability) error {
	unlock := s.locks.Lock(r.ResourceID)
	defer unlock()

	now := s.now().UTC()
	check := func(res *domain.Resource, overlapping []domain.Reservation) error {
		a, err := s.decide(res, iv, overlapping)
		*snapshot = a
		if err != nil {
			return err
		}
		if !res.NeedsApproval {
			r.Status = domain.ReservationApproved
			r.DecidedAt = &now
		}
		return nil
	}

	return s.reservations.CreateChecked(ctx, r, check, func(saved *domain.Reservation) ([]domain.OutboxEvent, error) {
		types := []domain.EventType{domain.EventReservationCreated}
		if saved.Status == domain.ReservationApproved {
			types = append(types, domain.EventReservationApproved)
		}
		return buildEvents(saved, actor.UserID, types...)
	})
}

// Approve moves a pending reservation to approved. Admins and the resource owner may decide.
func (s *Service) Approve(ctx context.Context, actor domain.Actor, id int64, notes string) (*domain.Reservation, error) {
	return s.transition(ctx, actor, id, "reservation.Service.Approve", func(r *domain.Reservation, caps capabilities, now time.Time) (domain.EventType, error) {
		if !caps.canDecide() {
			return "", ErrForbidden
		}
		if r.Status != domain.ReservationPending {
			return "", &TransitionError{From: r.Status, To: domain.ReservationApproved}
		}
		approver := actor.UserID
		r.Status = domain.ReservationApproved
		r.ApprovedBy = &approver
		r.DecidedAt = &now
		setNotes(r, notes)
		return domain.EventReservationApproved, nil
	})
}

// Reject moves a pending reservation to rejected and frees its capacity.
func (s *Service) Reject(ctx context.Context, actor domain.Actor, id int64, notes string) (*domain.Reservation, error) {
	return s.transition(ctx, actor, id, "reservation.Service.Reject", func(r *domain.Reservation, caps capabilities, now time.Time) (domain.EventType, error) {
		if !caps.canDecide() {
			return "", ErrForbidden
		}
		if r.Status != domain.ReservationPending {
			return "", &TransitionError{From: r.Status, To: domain.ReservationRejected}
		}
		r.Status = domain.ReservationRejected
		r.DecidedAt = &now
		setNotes(r, notes)
		return domain.EventReservationRejected, nil
	})
}

// Cancel withdraws a pending or approved reservation. Only the requester or an admin may cancel.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id int64, notes string) (*domain.Reservation, error) {
	return s.transition(ctx, actor, id, "reservation.Service.Cancel", func(r *domain.Reservation, caps capabilities, now time.Time) (domain.EventType, error) {
		if !caps.canCancel() {
			return "", ErrForbidden
		}
		if !r.Status.IsActive() {
			return "", &TransitionError{From: r.Status, To: domain.ReservationCanceled}
		}
		r.Status = domain.ReservationCanceled
		r.CanceledAt = &now
		setNotes(r, notes)
		return domain.EventReservationCanceled, nil
	})
}

type transitionFunc func(r *domain.Reservation, caps capabilities, now time.Time) (domain.EventType, error)

// transition re-fetches the reservation and retries when another writer bumped its version first.
func (s *Service) transition(ctx context.Context, actor domain.Actor, id int64, op string, apply transitionFunc) (*domain.Reservation, error) {
	log := s.log.With(slog.String("op", op), slog.Int64("reservation_id", id), slog.Int64("actor_id", actor.UserID))

	for attempt := 1; attempt <= s.cfg.StatusAttempts; attempt++ {
		current, _, caps, err := s.load(ctx, actor, id)
		if err != nil {
			return nil, err
		}

		next := *current
		eventType, err := apply(&next, caps, s.now().UTC())
		if err != nil {
			s.refused(err)
			return nil, err
		}

		err = s.reservations.UpdateStatus(ctx, &next, current.Version, func(saved *domain.Reservation) ([]domain.OutboxEvent, error) {
			return buildEvents(saved, actor.UserID, eventType)
		})
		if errors.Is(err, repository.ErrStaleVersion) {
			log.Debug("lost version race, re-fetching", slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			err = mapRepoError(err, ErrReservationNotFound)
			if isDomainError(err) {
				return nil, err
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		s.invalidate(ctx, next.ResourceID)
		s.observer.ReservationTransition(string(next.Status))
		log.Info("reservation status changed",
			slog.String("from", string(current.Status)),
			slog.String("to", string(next.Status)),
		)
		return &next, nil
	}

	log.Warn("status change abandoned after concurrent updates", slog.Int("attempts", s.cfg.StatusAttempts))
	return nil, ErrConcurrentUpdate
}

// Reschedule moves a pending reservation to a new interval, re-checking capacity without
// counting the reservation itself.
func (s *Service) Reschedule(ctx context.Context, actor domain.Actor, id int64, req UpdateReservationRequest) (*domain.Reservation, error) {
	const op = "reservation.Service.Reschedule"
	log := s.log.With(slog.String("op", op), slog.Int64("reservation_id", id), slog.Int64("actor_id", actor.UserID))

	iv, err := interval.New(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	attempts := max(s.cfg.CreateAttempts, s.cfg.StatusAttempts)
	for attempt := 1; attempt <= attempts; attempt++ {
		current, _, caps, err := s.load(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		if !caps.canReschedule() {
			return nil, ErrForbidden
		}
		if current.Status != domain.ReservationPending {
			return nil, &TransitionError{From: current.Status, To: domain.ReservationPending}
		}

		pre, err := s.checkAvailability(ctx, current.ResourceID, iv, current.ID)
		if err != nil {
			s.refused(err)
			return nil, err
		}
		if !pre.Available {
			s.refused(ErrCapacityExceeded)
			return nil, &CapacityError{Availability: pre}
		}

		next := *current
		next.StartTime = iv.Start
		next.EndTime = iv.End
		if p := strings.TrimSpace(req.Purpose); p != "" {
			next.Purpose = p
		}

		err = s.commitReschedule(ctx, actor, &next, current.Version, iv)
		if errors.Is(err, repository.ErrStaleVersion) || isRetryable(err) {
			log.Debug("reschedule raced, retrying", slog.Int("attempt", attempt), sl.Err(err))
			continue
		}
		if err != nil {
			err = mapRepoError(err, ErrReservationNotFound)
			s.refused(err)
			if isDomainError(err) {
				return nil, err
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		s.invalidate(ctx, next.ResourceID)
		log.Info("reservation rescheduled", slog.Time("start", next.StartTime), slog.Time("end", next.EndTime))
		return &next, nil
	}

	return nil, ErrConcurrentUpdate
}

func (s *Service) commitReschedule(ctx context.Context, actor domain.Actor, next *domain.Reservation, expectedVersion int64, iv interval.Interval) error {
	unlock := s.locks.Lock(next.ResourceID)
	defer unlock()

	check := func(res *domain.Resource, overlapping []domain.Reservation) error {
		_, err := s.decide(res, iv, overlapping)
		return err
	}
	return s.reservations.RescheduleChecked(ctx, next, expectedVersion, check, func(saved *domain.Reservation) ([]domain.OutboxEvent, error) {
		return buildEvents(saved, actor.UserID, domain.EventReservationRescheduled)
	})
}

// Get returns a reservation visible to the requester, the resource owner or an admin.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id int64) (*domain.Reservation, error) {
	r, _, caps, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !caps.canView() {
		return nil, ErrForbidden
	}
	return r, nil
}

func (s *Service) ListMine(ctx context.Context, actor domain.Actor, q ListReservationsQuery) ([]domain.Reservation, error) {
	f, err := toFilter(q)
	if err != nil {
		return nil, err
	}
	return s.reservations.ListByUser(ctx, actor.UserID, f)
}

// ListForResource lists every reservation of a resource for its owner or an admin.
func (s *Service) ListForResource(ctx context.Context, actor domain.Actor, resourceID int64, q ListReservationsQuery) ([]domain.Reservation, error) {
	res, err := s.resources.GetResource(ctx, resourceID)
	if errors.Is(err, resource.ErrNotFound) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !res.IsOwnedBy(actor.UserID) {
		return nil, ErrForbidden
	}

	f, err := toFilter(q)
	if err != nil {
		return nil, err
	}
	return s.reservations.ListByResource(ctx, resourceID, f)
}

func (s *Service) load(ctx context.Context, actor domain.Actor, id int64) (*domain.Reservation, *domain.Resource, capabilities, error) {
	r, err := s.reservations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, capabilities{}, ErrReservationNotFound
	}
	if err != nil {
		return nil, nil, capabilities{}, err
	}

	res, err := s.resources.GetResource(ctx, r.ResourceID)
	if err != nil && !errors.Is(err, resource.ErrNotFound) {
		return nil, nil, capabilities{}, err
	}
	return r, res, capabilitiesOf(actor, r, res), nil
}

func (s *Service) invalidate(ctx context.Context, resourceID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, resourceID); err != nil {
		s.log.Warn("failed to invalidate availability cache", slog.Int64("resource_id", resourceID), sl.Err(err))
	}
}

func (s *Service) refused(err error) {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		s.observer.ReservationRefused("capacity_exceeded")
	case errors.Is(err, ErrOutsideAvailabilityWindow):
		s.observer.ReservationRefused("outside_window")
	case errors.Is(err, ErrResourceNotFound):
		s.observer.ReservationRefused("resource_not_found")
	case errors.Is(err, ErrForbidden):
		s.observer.ReservationRefused("forbidden")
	case errors.Is(err, ErrInvalidTransition):
		s.observer.ReservationRefused("invalid_transition")
	}
}

func toFilter(q ListReservationsQuery) (repository.ReservationFilter, error) {
	f := repository.ReservationFilter{
		Status: domain.ReservationStatus(q.Status),
		From:   q.From,
		To:     q.To,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, ErrValidation
	}
	if f.Limit < 0 || f.Offset < 0 {
		return f, ErrValidation
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return f, nil
}

func setNotes(r *domain.Reservation, notes string) {
	if n := strings.TrimSpace(notes); n != "" {
		r.Notes = n
	}
}

func buildEvents(r *domain.Reservation, actorID int64, types ...domain.EventType) ([]domain.OutboxEvent, error) {
	out := make([]domain.OutboxEvent, 0, len(types))
	for i, t := range types {
		ev, err := repository.NewReservationEvent(t, r, actorID)
		if err != nil {
			return nil, err
		}
		// keep emission order stable for events written in one transaction
		ev.CreatedAt = ev.CreatedAt.Add(time.Duration(i) * time.Microsecond)
		out = append(out, ev)
	}
	return out, nil
}

func mapRepoError(err, notFound error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return err
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidInterval, ErrResourceNotFound, ErrReservationNotFound, ErrOutsideAvailabilityWindow,
		ErrCapacityExceeded, ErrInvalidTransition, ErrForbidden, ErrValidation, ErrConcurrentUpdate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// isRetryable reports PostgreSQL serialization failures, deadlocks and exclusion
// violations, which mean a concurrent writer won and the attempt may be repeated.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23P01":
		return true
	}
	return false
}
