package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartcampus/internal/database"
	"smartcampus/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

type outboxModel struct {
	ID          string     `gorm:"column:id;primaryKey;size:36"`
	EventType   string     `gorm:"column:event_type;size:64;not null"`
	AggregateID int64      `gorm:"column:aggregate_id;not null"`
	Payload     string     `gorm:"column:payload;type:text;not null"`
	Status      string     `gorm:"column:status;size:16;not null;index:idx_outbox_status_created,priority:1"`
	Attempts    int        `gorm:"column:attempts;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;index:idx_outbox_status_created,priority:2"`
	PublishedAt *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string { return "outbox_events" }

// NewReservationEvent builds an outbox event carrying the current state of r.
func NewReservationEvent(t domain.EventType, r *domain.Reservation, actorID int64) (domain.OutboxEvent, error) {
	now := time.Now().UTC()
	payload, err := json.Marshal(domain.ReservationEvent{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		UserID:        r.UserID,
		ActorID:       actorID,
		Status:        r.Status,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Notes:         r.Notes,
		OccurredAt:    now,
	})
	if err != nil {
		return domain.OutboxEvent{}, err
	}
	return domain.OutboxEvent{
		ID:          uuid.New(),
		Type:        t,
		AggregateID: r.ID,
		Payload:     payload,
		Status:      domain.EventNew,
		CreatedAt:   now,
	}, nil
}

func insertEvents(tx *gorm.DB, res *domain.Reservation, build EventsFunc) error {
	if build == nil {
		return nil
	}
	events, err := build(res)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	rows := make([]outboxModel, 0, len(events))
	for _, e := range events {
		rows = append(rows, outboxModel{
			ID:          e.ID.String(),
			EventType:   string(e.Type),
			AggregateID: e.AggregateID,
			Payload:     string(e.Payload),
			Status:      string(domain.EventNew),
			CreatedAt:   e.CreatedAt.UTC(),
		})
	}
	return tx.Create(&rows).Error
}

// OutboxStore is the relay's view of outbox_events. It shares the GORM connection pool.
type OutboxStore struct {
	db *sqlx.DB
}

func NewOutboxStore(db *gorm.DB) (*OutboxStore, error) {
	const op = "repository.NewOutboxStore"

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	driver := "sqlite3"
	if database.Dialect(db) == database.DialectPostgres {
		driver = "pgx"
	}
	return &OutboxStore{db: sqlx.NewDb(sqlDB, driver)}, nil
}

type outboxRow struct {
	ID          string     `db:"id"`
	EventType   string     `db:"event_type"`
	AggregateID int64      `db:"aggregate_id"`
	Payload     string     `db:"payload"`
	Status      string     `db:"status"`
	Attempts    int        `db:"attempts"`
	CreatedAt   time.Time  `db:"created_at"`
	PublishedAt *time.Time `db:"published_at"`
}

// FetchNew returns up to limit unpublished events, oldest first.
func (s *OutboxStore) FetchNew(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	const op = "repository.OutboxStore.FetchNew"

	q := s.db.Rebind(`
SELECT id, event_type, aggregate_id, payload, status, attempts, created_at, published_at
FROM outbox_events
WHERE status = ?
ORDER BY created_at ASC, id ASC
LIMIT ?`)

	var rows []outboxRow
	if err := s.db.SelectContext(ctx, &rows, q, string(domain.EventNew), limit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]domain.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: event %q: %w", op, row.ID, err)
		}
		out = append(out, domain.OutboxEvent{
			ID:          id,
			Type:        domain.EventType(row.EventType),
			AggregateID: row.AggregateID,
			Payload:     []byte(row.Payload),
			Status:      domain.EventStatus(row.Status),
			Attempts:    row.Attempts,
			CreatedAt:   row.CreatedAt,
			PublishedAt: row.PublishedAt,
		})
	}
	return out, nil
}

func (s *OutboxStore) MarkDone(ctx context.Context, id uuid.UUID) error {
	const op = "repository.OutboxStore.MarkDone"

	q := s.db.Rebind(`UPDATE outbox_events SET status = ?, published_at = ?, attempts = attempts + 1 WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, string(domain.EventDone), time.Now().UTC(), id.String()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	const op = "repository.OutboxStore.MarkFailed"

	q := s.db.Rebind(`UPDATE outbox_events SET attempts = attempts + 1 WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, id.String()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
