package resource

import (
	"context"
	"time"

	"smartcampus/internal/domain"
	"smartcampus/internal/repository"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.Resource, error)
	List(ctx context.Context, f repository.ResourceFilter) ([]domain.Resource, error)
	Create(ctx context.Context, res *domain.Resource) error
	Update(ctx context.Context, res *domain.Resource, now time.Time, guard repository.UpdateGuard) error
}

// CacheInvalidator drops cached availability answers for a resource.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, resourceID int64) error
}
