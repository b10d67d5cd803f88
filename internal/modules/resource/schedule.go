package resource

import (
	"fmt"
	"time"

	"smartcampus/internal/domain"
	"smartcampus/internal/pkg/interval"
	"smartcampus/internal/pkg/validator"
)

const minutesPerDay = 24 * 60

// WindowError explains which local day of a request falls outside the resource's hours.
// It matches ErrOutsideAvailabilityWindow.
type WindowError struct {
	Date   string                    `json:"date"`
	Day    string                    `json:"day"`
	Window *domain.DayWindow         `json:"window,omitempty"`
	Hours  domain.WeeklyAvailability `json:"availability"`
	Reason string                    `json:"reason"`
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("outside availability window on %s (%s): %s", e.Date, e.Day, e.Reason)
}

func (e *WindowError) Is(target error) bool { return target == ErrOutsideAvailabilityWindow }

// Schedule evaluates weekly availability windows in the campus time zone.
type Schedule struct {
	loc *time.Location
}

func NewSchedule(loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return Schedule{loc: loc}
}

func (s Schedule) Location() *time.Location { return s.loc }

func (s Schedule) IsWithinAvailability(res *domain.Resource, iv interval.Interval) bool {
	return s.Check(res, iv) == nil
}

// Check splits iv at local midnights and requires every piece to lie inside that
// weekday's window. A weekday without an entry is closed.
func (s Schedule) Check(res *domain.Resource, iv interval.Interval) error {
	cur := iv.Start.In(s.loc)
	end := iv.End.In(s.loc)

	for cur.Before(end) {
		y, m, d := cur.Date()
		nextMidnight := time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
		segEnd := end
		if nextMidnight.Before(end) {
			segEnd = nextMidnight
		}

		startMin := cur.Hour()*60 + cur.Minute()
		endMin := minutesPerDay
		if segEnd.Before(nextMidnight) {
			endMin = segEnd.Hour()*60 + segEnd.Minute()
			if segEnd.Second() > 0 {
				endMin++
			}
		}

		if reason := checkDay(res.Availability, cur.Weekday(), startMin, endMin); reason != "" {
			werr := &WindowError{
				Date:   cur.Format("2006-01-02"),
				Day:    domain.WeekdayKey(cur.Weekday()),
				Hours:  res.Availability,
				Reason: reason,
			}
			if w, ok := res.Availability[werr.Day]; ok {
				werr.Window = &w
			}
			return werr
		}

		cur = segEnd
	}
	return nil
}

func checkDay(wa domain.WeeklyAvailability, day time.Weekday, startMin, endMin int) string {
	w, ok := wa[domain.WeekdayKey(day)]
	if !ok {
		return "no hours defined"
	}
	if !w.Available {
		return "closed"
	}
	open, err := validator.ParseClock(w.Start)
	if err != nil {
		return "invalid opening time"
	}
	closing, err := validator.ParseClock(w.End)
	if err != nil {
		return "invalid closing time"
	}
	if closing <= open {
		return "closed"
	}
	if startMin < open || endMin > closing {
		return fmt.Sprintf("open %s-%s", w.Start, w.End)
	}
	return ""
}

// EffectiveCapacity is the number of reservations that may overlap at any instant.
// Capacity 0 marks an exclusive-use resource.
func EffectiveCapacity(res *domain.Resource) int {
	if res.Capacity < 1 {
		return 1
	}
	return res.Capacity
}
