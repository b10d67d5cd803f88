package repository

import (
	"context"
	"fmt"
	"time"

	"smartcampus/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

type resourceModel struct {
	ID            int64                     `gorm:"column:id;primaryKey"`
	Name          string                    `gorm:"column:name;size:200;not null"`
	Type          string                    `gorm:"column:type;size:32;not null;index"`
	Description   *string                   `gorm:"column:description"`
	Location      string                    `gorm:"column:location;not null"`
	Capacity      int                       `gorm:"column:capacity;not null"`
	Amenities     []string                  `gorm:"column:amenities;serializer:json"`
	Availability  domain.WeeklyAvailability `gorm:"column:availability;serializer:json"`
	NeedsApproval bool                      `gorm:"column:needs_approval;not null"`
	OwnerID       *int64                    `gorm:"column:owner_id;index"`
	IsActive      bool                      `gorm:"column:is_active;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at"`
}

func (resourceModel) TableName() string { return "resources" }

func toDomainResource(m resourceModel) *domain.Resource {
	var desc string
	if m.Description != nil {
		desc = *m.Description
	}
	return &domain.Resource{
		ID:            m.ID,
		Name:          m.Name,
		Type:          domain.ResourceType(m.Type),
		Description:   desc,
		Location:      m.Location,
		Capacity:      m.Capacity,
		Amenities:     m.Amenities,
		Availability:  m.Availability,
		NeedsApproval: m.NeedsApproval,
		OwnerID:       m.OwnerID,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toResourceModel(r *domain.Resource) resourceModel {
	var desc *string
	if r.Description != "" {
		v := r.Description
		desc = &v
	}
	return resourceModel{
		ID:            r.ID,
		Name:          r.Name,
		Type:          string(r.Type),
		Description:   desc,
		Location:      r.Location,
		Capacity:      r.Capacity,
		Amenities:     r.Amenities,
		Availability:  r.Availability,
		NeedsApproval: r.NeedsApproval,
		OwnerID:       r.OwnerID,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type ResourceFilter struct {
	Type            domain.ResourceType
	IncludeInactive bool
	Limit           int
	Offset          int
}

func (r *ResourceRepository) Create(ctx context.Context, res *domain.Resource) error {
	m := toResourceModel(res)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("repository.Resource.Create: %w", err)
	}
	*res = *toDomainResource(m)
	return nil
}

func (r *ResourceRepository) GetByID(ctx context.Context, id int64) (*domain.Resource, error) {
	var m resourceModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return toDomainResource(m), nil
}

func (r *ResourceRepository) List(ctx context.Context, f ResourceFilter) ([]domain.Resource, error) {
	q := r.db.WithContext(ctx).Model(&resourceModel{})
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	if !f.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	var rows []resourceModel
	if err := q.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("repository.Resource.List: %w", err)
	}

	out := make([]domain.Resource, 0, len(rows))
	for _, m := range rows {
		out = append(out, *toDomainResource(m))
	}
	return out, nil
}

// UpdateGuard inspects the stored resource before an update is written.
// hasFutureActive reports whether pending or approved reservations end after now.
type UpdateGuard func(current *domain.Resource, hasFutureActive bool) error

// Update locks the resource row, runs guard and saves res. Reservation creation takes
// the same row lock, so the guard sees every committed reservation.
func (r *ResourceRepository) Update(ctx context.Context, res *domain.Resource, now time.Time, guard UpdateGuard) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current resourceModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, res.ID).Error; err != nil {
			return mapNotFound(err)
		}

		if guard != nil {
			var cnt int64
			err := tx.Model(&reservationModel{}).
				Where("resource_id = ? AND status IN ? AND end_time > ?", res.ID, activeStatusStrings(), now.UTC()).
				Count(&cnt).Error
			if err != nil {
				return err
			}
			if err := guard(toDomainResource(current), cnt > 0); err != nil {
				return err
			}
		}

		m := toResourceModel(res)
		m.CreatedAt = current.CreatedAt
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		*res = *toDomainResource(m)
		return nil
	})
}
