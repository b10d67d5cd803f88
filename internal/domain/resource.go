package domain

import "time"

type ResourceType string

const (
	ResourceRoom      ResourceType = "room"
	ResourceEquipment ResourceType = "equipment"
	ResourceVenue     ResourceType = "venue"
	ResourceOther     ResourceType = "other"
)

func (t ResourceType) Valid() bool {
	switch t {
	case ResourceRoom, ResourceEquipment, ResourceVenue, ResourceOther:
		return true
	}
	return false
}

// DayWindow is the open/close time of a resource on one weekday, "HH:MM" local time.
// End may be "24:00" to keep the resource open until midnight.
type DayWindow struct {
	Start     string `json:"start" validate:"required,hhmm"`
	End       string `json:"end" validate:"required,hhmm"`
	Available bool   `json:"available"`
}

// WeeklyAvailability is keyed by lower-case weekday name ("monday" ... "sunday").
type WeeklyAvailability map[string]DayWindow

var Weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func WeekdayKey(w time.Weekday) string {
	return Weekdays[int(w)%7]
}

// DefaultAvailability: weekdays 08:00-18:00, weekends closed.
func DefaultAvailability() WeeklyAvailability {
	wa := make(WeeklyAvailability, 7)
	for i, day := range Weekdays {
		if i == int(time.Sunday) || i == int(time.Saturday) {
			wa[day] = DayWindow{Start: "09:00", End: "15:00", Available: false}
			continue
		}
		wa[day] = DayWindow{Start: "08:00", End: "18:00", Available: true}
	}
	return wa
}

type Resource struct {
	ID            int64              `json:"id"`
	Name          string             `json:"name" validate:"required,max=200"`
	Type          ResourceType       `json:"type" validate:"required,oneof=room equipment venue other"`
	Description   string             `json:"description,omitempty"`
	Location      string             `json:"location" validate:"required"`
	Capacity      int                `json:"capacity" validate:"gte=0"`
	Amenities     []string           `json:"amenities,omitempty"`
	Availability  WeeklyAvailability `json:"availability" validate:"dive,keys,oneof=sunday monday tuesday wednesday thursday friday saturday,endkeys"`
	NeedsApproval bool               `json:"needs_approval"`
	OwnerID       *int64             `json:"owner_id,omitempty"`
	IsActive      bool               `json:"is_active"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (r *Resource) IsOwnedBy(userID int64) bool {
	return r.OwnerID != nil && *r.OwnerID == userID
}
