package resource

import "smartcampus/internal/domain"

type CreateResourceRequest struct {
	Name          string                    `json:"name" binding:"required"`
	Type          domain.ResourceType       `json:"type" binding:"required"`
	Description   string                    `json:"description"`
	Location      string                    `json:"location" binding:"required"`
	Capacity      int                       `json:"capacity"`
	Amenities     []string                  `json:"amenities"`
	Availability  domain.WeeklyAvailability `json:"availability"`
	NeedsApproval *bool                     `json:"needs_approval"`
	OwnerID       *int64                    `json:"owner_id"`
}

// UpdateResourceRequest is a partial update; nil fields are left unchanged.
type UpdateResourceRequest struct {
	Name          *string                   `json:"name"`
	Type          *domain.ResourceType      `json:"type"`
	Description   *string                   `json:"description"`
	Location      *string                   `json:"location"`
	Capacity      *int                      `json:"capacity"`
	Amenities     []string                  `json:"amenities"`
	Availability  domain.WeeklyAvailability `json:"availability"`
	NeedsApproval *bool                     `json:"needs_approval"`
	OwnerID       *int64                    `json:"owner_id"`
	IsActive      *bool                     `json:"is_active"`
}

type ListResourcesQuery struct {
	Type            string `form:"type"`
	IncludeInactive bool   `form:"include_inactive"`
	Limit           int    `form:"limit"`
	Offset          int    `form:"offset"`
}
