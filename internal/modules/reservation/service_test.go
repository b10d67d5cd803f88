package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartcampus/internal/domain"
	"smartcampus/internal/modules/resource"
	"smartcampus/internal/pkg/interval"
	"smartcampus/internal/pkg/logger"
	"smartcampus/internal/pkg/testdb"
	"smartcampus/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	admin    = domain.Actor{UserID: 1, Role: domain.RoleAdmin}
	lecturer = domain.Actor{UserID: 10, Role: domain.RoleLecturer}
	alice    = domain.Actor{UserID: 20, Role: domain.RoleStudent}
	bob      = domain.Actor{UserID: 21, Role: domain.RoleStudent}
)

// monday returns 2026-11-02 (a Monday) at h:m UTC.
func monday(h, m int) time.Time {
	return time.Date(2026, 11, 2, h, m, 0, 0, time.UTC)
}

type fixture struct {
	db        *gorm.DB
	svc       *Service
	resources *resource.Service
	repo      *repository.ReservationRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testdb.Open(t)
	require.NoError(t, repository.AutoMigrate(db))

	resources := resource.NewService(logger.Discard(), repository.NewResourceRepository(db), resource.NewSchedule(time.UTC), nil)
	repo := repository.NewReservationRepository(db)
	svc := NewService(logger.Discard(), repo, resources, resources.Schedule(), nil, nil, Config{CreateAttempts: 3, StatusAttempts: 3})
	return &fixture{db: db, svc: svc, resources: resources, repo: repo}
}

func (f *fixture) resource(t *testing.T, capacity int, needsApproval bool, owner *int64) *domain.Resource {
	t.Helper()
	res, err := f.resources.Create(context.Background(), admin, resource.CreateResourceRequest{
		Name:          "Study Room 1",
		Type:          domain.ResourceRoom,
		Location:      "Library, 3rd Floor",
		Capacity:      capacity,
		NeedsApproval: &needsApproval,
		OwnerID:       owner,
	})
	require.NoError(t, err)
	return res
}

func request(resourceID int64, start, end time.Time) CreateReservationRequest {
	return CreateReservationRequest{ResourceID: resourceID, StartTime: start, EndTime: end, Purpose: "Study session"}
}

func TestCreate_CapacityOneScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 1, false, nil)

	a, err := f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationApproved, a.Status)
	assert.NotNil(t, a.DecidedAt)

	_, err = f.svc.Create(ctx, bob, request(res.ID, monday(9, 30), monday(10, 30)))
	require.ErrorIs(t, err, ErrCapacityExceeded)
	var cerr *CapacityError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Availability.Conflicts, 1)
	assert.Equal(t, a.ID, cerr.Availability.Conflicts[0].ID)

	c, err := f.svc.Create(ctx, bob, request(res.ID, monday(10, 0), monday(11, 0)))
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationApproved, c.Status)
}

func TestCreate_PendingWhenApprovalNeeded(t *testing.T) {
	f := setup(t)
	res := f.resource(t, 1, true, nil)

	r, err := f.svc.Create(context.Background(), alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, r.Status)
	assert.Equal(t, alice.UserID, r.UserID)
	assert.Equal(t, int64(1), r.Version)
}

func TestCreate_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 1, true, nil)

	_, err := f.svc.Create(ctx, alice, request(res.ID, monday(10, 0), monday(10, 0)))
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = f.svc.Create(ctx, alice, request(res.ID, monday(11, 0), monday(10, 0)))
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = f.svc.Create(ctx, alice, request(res.ID+100, monday(9, 0), monday(10, 0)))
	assert.ErrorIs(t, err, ErrResourceNotFound)

	sunday := monday(10, 0).AddDate(0, 0, -1)
	_, err = f.svc.Create(ctx, alice, request(res.ID, sunday, sunday.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrOutsideAvailabilityWindow)

	_, err = f.svc.Create(ctx, alice, request(res.ID, monday(17, 0), monday(19, 0)))
	assert.ErrorIs(t, err, ErrOutsideAvailabilityWindow)

	req := request(res.ID, monday(9, 0), monday(10, 0))
	req.Purpose = "   "
	_, err = f.svc.Create(ctx, alice, req)
	assert.ErrorIs(t, err, ErrValidation)

	inactive := false
	_, err = f.resources.Update(ctx, admin, res.ID, resource.UpdateResourceRequest{IsActive: &inactive})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestCreate_SharedPoolCountsPeakConcurrency(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 2, false, nil)

	_, err := f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, alice, request(res.ID, monday(10, 0), monday(11, 0)))
	require.NoError(t, err)

	// two overlaps, but never at the same instant
	_, err = f.svc.Create(ctx, bob, request(res.ID, monday(9, 0), monday(11, 0)))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, bob, request(res.ID, monday(9, 30), monday(10, 30)))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCreate_ConcurrentRequestsForExclusiveResource(t *testing.T) {
	f := setup(t)
	res := f.resource(t, 0, true, nil)

	const workers = 12
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		refused    int
		unexpected []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := domain.Actor{UserID: int64(100 + i), Role: domain.RoleStudent}
			start := monday(9, i%4*10)
			_, err := f.svc.Create(context.Background(), actor, request(res.ID, start, start.Add(time.Hour)))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrCapacityExceeded):
				refused++
			default:
				unexpected = append(unexpected, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, unexpected)
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, refused)

	active, err := f.repo.ListOverlapping(context.Background(), res.ID, interval.MustNew(monday(8, 0), monday(18, 0)), 0)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCancel_FreesCapacityImmediately(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 1, false, nil)
	iv := interval.MustNew(monday(9, 0), monday(10, 0))

	r, err := f.svc.Create(ctx, alice, request(res.ID, iv.Start, iv.End))
	require.NoError(t, err)

	before, err := f.svc.CheckAvailability(ctx, res.ID, iv)
	require.NoError(t, err)
	assert.False(t, before.Available)
	assert.Equal(t, 1, before.InUse)

	canceled, err := f.svc.Cancel(ctx, alice, r.ID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCanceled, canceled.Status)
	assert.NotNil(t, canceled.CanceledAt)

	after, err := f.svc.CheckAvailability(ctx, res.ID, iv)
	require.NoError(t, err)
	assert.True(t, after.Available)
	assert.Empty(t, after.Conflicts)

	stored, err := f.svc.Get(ctx, alice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCanceled, stored.Status)
	assert.Equal(t, "plans changed", stored.Notes)
}

func TestCancel_ByStrangerIsForbidden(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 1, true, nil)

	r, err := f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, bob, r.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	stored, err := f.repo.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, stored.Status)
	assert.Equal(t, r.Version, stored.Version)

	_, err = f.svc.Cancel(ctx, admin, r.ID, "room closed")
	require.NoError(t, err)
}

func TestApprove_Rules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := lecturer.UserID
	res := f.resource(t, 1, true, &owner)

	r, err := f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, alice, r.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	otherLecturer := domain.Actor{UserID: 11, Role: domain.RoleLecturer}
	_, err = f.svc.Approve(ctx, otherLecturer, r.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	approved, err := f.svc.Approve(ctx, lecturer, r.ID, "enjoy")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, lecturer.UserID, *approved.ApprovedBy)
	assert.Equal(t, int64(2), approved.Version)

	_, err = f.svc.Approve(ctx, admin, r.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.ReservationApproved, terr.From)

	_, err = f.svc.Reject(ctx, admin, r.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 1, true, nil)

	rejected, err := f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, admin, rejected.ID, "exam week")
	require.NoError(t, err)

	for name, op := range map[string]func() error{
		"approve": func() error { _, err := f.svc.Approve(ctx, admin, rejected.ID, ""); return err },
		"reject":  func() error { _, err := f.svc.Reject(ctx, admin, rejected.ID, ""); return err },
		"cancel":  func() error { _, err := f.svc.Cancel(ctx, admin, rejected.ID, ""); return err },
	} {
		assert.ErrorIs(t, op(), ErrInvalidTransition, name)
	}

	// rejected reservations no longer hold capacity
	_, err = f.svc.Create(ctx, bob, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, alice, 9999, "")
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestReschedule(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 1, true, nil)

	mine, err := f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, bob, request(res.ID, monday(12, 0), monday(13, 0)))
	require.NoError(t, err)

	// overlapping only itself is fine
	moved, err := f.svc.Reschedule(ctx, alice, mine.ID, UpdateReservationRequest{StartTime: monday(9, 30), EndTime: monday(10, 30)})
	require.NoError(t, err)
	assert.Equal(t, monday(9, 30), moved.StartTime)
	assert.Equal(t, "Study session", moved.Purpose)

	_, err = f.svc.Reschedule(ctx, alice, mine.ID, UpdateReservationRequest{StartTime: monday(12, 30), EndTime: monday(13, 30)})
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = f.svc.Reschedule(ctx, bob, mine.ID, UpdateReservationRequest{StartTime: monday(14, 0), EndTime: monday(15, 0)})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Approve(ctx, admin, other.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Reschedule(ctx, bob, other.ID, UpdateReservationRequest{StartTime: monday(14, 0), EndTime: monday(15, 0)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGetAndLists(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := lecturer.UserID
	res := f.resource(t, 3, true, &owner)

	r, err := f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, bob, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, bob, r.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Get(ctx, lecturer, r.ID)
	assert.NoError(t, err)

	mine, err := f.svc.ListMine(ctx, alice, ListReservationsQuery{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, r.ID, mine[0].ID)

	_, err = f.svc.ListMine(ctx, alice, ListReservationsQuery{Status: "maybe"})
	assert.ErrorIs(t, err, ErrValidation)

	all, err := f.svc.ListForResource(ctx, lecturer, res.ID, ListReservationsQuery{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.ListForResource(ctx, alice, res.ID, ListReservationsQuery{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreate_WritesOutboxEvents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 1, false, nil)

	r, err := f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, alice, r.ID, "")
	require.NoError(t, err)

	store, err := repository.NewOutboxStore(f.db)
	require.NoError(t, err)
	events, err := store.FetchNew(ctx, 10)
	require.NoError(t, err)

	var types []domain.EventType
	for _, e := range events {
		assert.Equal(t, r.ID, e.AggregateID)
		types = append(types, e.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventReservationCreated,
		domain.EventReservationApproved,
		domain.EventReservationCanceled,
	}, types)
}

// flakyRepo injects the failures a busy PostgreSQL primary produces.
type flakyRepo struct {
	*repository.ReservationRepository
	createFailures int
	staleUpdates   int
}

func (r *flakyRepo) CreateChecked(ctx context.Context, res *domain.Reservation, check repository.CheckFunc, events repository.EventsFunc) error {
	if r.createFailures > 0 {
		r.createFailures--
		return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	}
	return r.ReservationRepository.CreateChecked(ctx, res, check, events)
}

func (r *flakyRepo) UpdateStatus(ctx context.Context, res *domain.Reservation, expectedVersion int64, events repository.EventsFunc) error {
	if r.staleUpdates > 0 {
		r.staleUpdates--
		return repository.ErrStaleVersion
	}
	return r.ReservationRepository.UpdateStatus(ctx, res, expectedVersion, events)
}

func flakyService(f *fixture, repo *flakyRepo) *Service {
	return NewService(logger.Discard(), repo, f.resources, f.resources.Schedule(), nil, nil, Config{CreateAttempts: 3, StatusAttempts: 3})
}

func TestCreate_RetriesSerializationFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 1, true, nil)

	svc := flakyService(f, &flakyRepo{ReservationRepository: f.repo, createFailures: 2})
	r, err := svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)
	assert.NotZero(t, r.ID)

	svc = flakyService(f, &flakyRepo{ReservationRepository: f.repo, createFailures: 3})
	_, err = svc.Create(ctx, bob, request(res.ID, monday(11, 0), monday(12, 0)))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestTransition_RetriesLostVersionRace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 1, true, nil)

	r, err := f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)

	svc := flakyService(f, &flakyRepo{ReservationRepository: f.repo, staleUpdates: 2})
	approved, err := svc.Approve(ctx, admin, r.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationApproved, approved.Status)

	svc = flakyService(f, &flakyRepo{ReservationRepository: f.repo, staleUpdates: 3})
	_, err = svc.Cancel(ctx, alice, r.ID, "")
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
}

func TestConcurrentTransitionsOnOneReservation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.resource(t, 1, true, nil)

	r, err := f.svc.Create(ctx, alice, request(res.ID, monday(9, 0), monday(10, 0)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, results[0] = f.svc.Approve(ctx, admin, r.ID, "") }()
	go func() { defer wg.Done(); _, results[1] = f.svc.Cancel(ctx, alice, r.ID, "") }()
	wg.Wait()

	stored, err := f.repo.GetByID(ctx, r.ID)
	require.NoError(t, err)
	require.NoError(t, results[1], "cancel is valid from both pending and approved")
	assert.Equal(t, domain.ReservationCanceled, stored.Status)
	if results[0] != nil {
		assert.ErrorIs(t, results[0], ErrInvalidTransition)
	}
}
