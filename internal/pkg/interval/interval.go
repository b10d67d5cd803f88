package interval

import (
	"errors"
	"sort"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval: end must be after start")

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New normalises both bounds to UTC with second precision and rejects end <= start.
func New(start, end time.Time) (Interval, error) {
	iv := Interval{Start: normalize(start), End: normalize(end)}
	if !iv.End.After(iv.Start) {
		return Interval{}, ErrInvalidInterval
	}
	return iv, nil
}

// MustNew is New for literals in tests and seed data.
func MustNew(start, end time.Time) Interval {
	iv, err := New(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Overlaps reports whether a and b share at least one instant.
// Back-to-back intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func (iv Interval) Overlaps(other Interval) bool {
	return Overlaps(iv, other)
}

// Clip returns the intersection of iv and other; ok is false when they do not overlap.
func (iv Interval) Clip(other Interval) (Interval, bool) {
	if !Overlaps(iv, other) {
		return Interval{}, false
	}
	out := iv
	if other.Start.After(out.Start) {
		out.Start = other.Start
	}
	if other.End.Before(out.End) {
		out.End = other.End
	}
	return out, true
}

// PeakConcurrency returns the largest number of intervals from others that are
// active at the same instant inside window.
func PeakConcurrency(window Interval, others []Interval) int {
	type edge struct {
		at    time.Time
		delta int
	}

	edges := make([]edge, 0, len(others)*2)
	for _, o := range others {
		c, ok := o.Clip(window)
		if !ok {
			continue
		}
		edges = append(edges, edge{at: c.Start, delta: 1}, edge{at: c.End, delta: -1})
	}

	// at equal instants, closing edges go first: [9,10) and [10,11) never coexist
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at.Equal(edges[j].at) {
			return edges[i].delta < edges[j].delta
		}
		return edges[i].at.Before(edges[j].at)
	})

	cur, peak := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}
