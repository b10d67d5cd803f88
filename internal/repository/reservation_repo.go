package repository

import (
	"context"
	"fmt"
	"time"

	"smartcampus/internal/domain"
	"smartcampus/internal/pkg/interval"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

type reservationModel struct {
	ID         int64      `gorm:"column:id;primaryKey"`
	ResourceID int64      `gorm:"column:resource_id;not null;index:idx_reservations_resource_window,priority:1"`
	UserID     int64      `gorm:"column:user_id;not null;index"`
	StartTime  time.Time  `gorm:"column:start_time;not null;index:idx_reservations_resource_window,priority:3"`
	EndTime    time.Time  `gorm:"column:end_time;not null"`
	Purpose    string     `gorm:"column:purpose;not null"`
	Status     string     `gorm:"column:status;size:16;not null;index:idx_reservations_resource_window,priority:2"`
	ApprovedBy *int64     `gorm:"column:approved_by"`
	Notes      *string    `gorm:"column:notes"`
	Version    int64      `gorm:"column:version;not null"`
	DecidedAt  *time.Time `gorm:"column:decided_at"`
	CanceledAt *time.Time `gorm:"column:canceled_at"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
}

func (reservationModel) TableName() string { return "reservations" }

func toDomainReservation(m reservationModel) *domain.Reservation {
	var notes string
	if m.Notes != nil {
		notes = *m.Notes
	}
	return &domain.Reservation{
		ID:         m.ID,
		ResourceID: m.ResourceID,
		UserID:     m.UserID,
		StartTime:  m.StartTime.UTC(),
		EndTime:    m.EndTime.UTC(),
		Purpose:    m.Purpose,
		Status:     domain.ReservationStatus(m.Status),
		ApprovedBy: m.ApprovedBy,
		Notes:      notes,
		Version:    m.Version,
		DecidedAt:  m.DecidedAt,
		CanceledAt: m.CanceledAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toReservationModel(r *domain.Reservation) reservationModel {
	var notes *string
	if r.Notes != "" {
		v := r.Notes
		notes = &v
	}
	return reservationModel{
		ID:         r.ID,
		ResourceID: r.ResourceID,
		UserID:     r.UserID,
		StartTime:  r.StartTime.UTC(),
		EndTime:    r.EndTime.UTC(),
		Purpose:    r.Purpose,
		Status:     string(r.Status),
		ApprovedBy: r.ApprovedBy,
		Notes:      notes,
		Version:    r.Version,
		DecidedAt:  r.DecidedAt,
		CanceledAt: r.CanceledAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func activeStatusStrings() []string {
	out := make([]string, 0, len(domain.ActiveStatuses))
	for _, s := range domain.ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}

type ReservationFilter struct {
	Status domain.ReservationStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

func (f ReservationFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.From != nil {
		q = q.Where("end_time > ?", f.From.UTC().Truncate(time.Second))
	}
	if f.To != nil {
		q = q.Where("start_time < ?", f.To.UTC().Truncate(time.Second))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	return q
}

// CheckFunc decides whether a reservation may be written given the locked resource
// and the active reservations overlapping the requested interval.
type CheckFunc func(res *domain.Resource, overlapping []domain.Reservation) error

// EventsFunc builds the outbox events for a reservation after it has been written.
type EventsFunc func(r *domain.Reservation) ([]domain.OutboxEvent, error)

func (r *ReservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	var m reservationModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return toDomainReservation(m), nil
}

func (r *ReservationRepository) ListByUser(ctx context.Context, userID int64, f ReservationFilter) ([]domain.Reservation, error) {
	q := f.apply(r.db.WithContext(ctx).Model(&reservationModel{}).Where("user_id = ?", userID))
	return r.find(q.Order("start_time ASC, id ASC"), "repository.Reservation.ListByUser")
}

func (r *ReservationRepository) ListByResource(ctx context.Context, resourceID int64, f ReservationFilter) ([]domain.Reservation, error) {
	q := f.apply(r.db.WithContext(ctx).Model(&reservationModel{}).Where("resource_id = ?", resourceID))
	return r.find(q.Order("start_time ASC, id ASC"), "repository.Reservation.ListByResource")
}

// ListOverlapping returns the pending and approved reservations of a resource that
// overlap iv. excludeID skips one reservation (0 skips none).
func (r *ReservationRepository) ListOverlapping(ctx context.Context, resourceID int64, iv interval.Interval, excludeID int64) ([]domain.Reservation, error) {
	return r.find(overlapQuery(r.db.WithContext(ctx), resourceID, iv, excludeID), "repository.Reservation.ListOverlapping")
}

func (r *ReservationRepository) find(q *gorm.DB, op string) ([]domain.Reservation, error) {
	var rows []reservationModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]domain.Reservation, 0, len(rows))
	for _, m := range rows {
		out = append(out, *toDomainReservation(m))
	}
	return out, nil
}

func overlapQuery(db *gorm.DB, resourceID int64, iv interval.Interval, excludeID int64) *gorm.DB {
	q := db.Model(&reservationModel{}).
		Where("resource_id = ? AND status IN ?", resourceID, activeStatusStrings()).
		Where("start_time < ? AND end_time > ?", iv.End.UTC(), iv.Start.UTC())
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	return q.Order("start_time ASC, id ASC")
}

// lockAndCheck locks the resource row for the rest of tx, then runs check against the
// reservations overlapping iv as seen inside tx.
func lockAndCheck(tx *gorm.DB, resourceID int64, iv interval.Interval, excludeID int64, check CheckFunc) error {
	var res resourceModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, resourceID).Error; err != nil {
		return mapNotFound(err)
	}

	var rows []reservationModel
	if err := overlapQuery(tx, resourceID, iv, excludeID).Find(&rows).Error; err != nil {
		return err
	}
	overlapping := make([]domain.Reservation, 0, len(rows))
	for _, m := range rows {
		overlapping = append(overlapping, *toDomainReservation(m))
	}
	return check(toDomainResource(res), overlapping)
}

// CreateChecked inserts res and its outbox events only if check passes while the
// resource row is locked.
func (r *ReservationRepository) CreateChecked(ctx context.Context, res *domain.Reservation, check CheckFunc, events EventsFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockAndCheck(tx, res.ResourceID, res.Interval(), 0, check); err != nil {
			return err
		}

		m := toReservationModel(res)
		if m.Version == 0 {
			m.Version = 1
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		*res = *toDomainReservation(m)

		return insertEvents(tx, res, events)
	})
}

// RescheduleChecked moves a reservation to res.StartTime/res.EndTime when check passes
// and the stored version still equals expectedVersion.
func (r *ReservationRepository) RescheduleChecked(ctx context.Context, res *domain.Reservation, expectedVersion int64, check CheckFunc, events EventsFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockAndCheck(tx, res.ResourceID, res.Interval(), res.ID, check); err != nil {
			return err
		}
		return casUpdate(tx, res, expectedVersion, map[string]any{
			"start_time": res.StartTime.UTC(),
			"end_time":   res.EndTime.UTC(),
			"purpose":    res.Purpose,
		}, events)
	})
}

// UpdateStatus writes the status fields of res when the stored version still equals
// expectedVersion, otherwise it returns ErrStaleVersion.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, res *domain.Reservation, expectedVersion int64, events EventsFunc) error {
	var notes *string
	if res.Notes != "" {
		v := res.Notes
		notes = &v
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return casUpdate(tx, res, expectedVersion, map[string]any{
			"status":      string(res.Status),
			"approved_by": res.ApprovedBy,
			"notes":       notes,
			"decided_at":  res.DecidedAt,
			"canceled_at": res.CanceledAt,
		}, events)
	})
}

func casUpdate(tx *gorm.DB, res *domain.Reservation, expectedVersion int64, fields map[string]any, events EventsFunc) error {
	now := time.Now().UTC()
	fields["version"] = expectedVersion + 1
	fields["updated_at"] = now

	result := tx.Model(&reservationModel{}).
		Where("id = ? AND version = ?", res.ID, expectedVersion).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var cnt int64
		if err := tx.Model(&reservationModel{}).Where("id = ?", res.ID).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			return ErrNotFound
		}
		return ErrStaleVersion
	}

	res.Version = expectedVersion + 1
	res.UpdatedAt = now
	return insertEvents(tx, res, events)
}
