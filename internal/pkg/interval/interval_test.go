package interval

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2026, 11, 2, h, m, 0, 0, time.UTC)
}

func TestNew_RejectsEmptyAndInverted(t *testing.T) {
	_, err := New(at(10, 0), at(10, 0))
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = New(at(11, 0), at(10, 0))
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestNew_NormalisesToUTCSeconds(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	start := time.Date(2026, 11, 2, 14, 0, 0, 999, loc)

	iv, err := New(start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, iv.Start.Location())
	assert.Equal(t, 9, iv.Start.Hour())
	assert.Equal(t, 0, iv.Start.Nanosecond())
}

func TestOverlaps_Cases(t *testing.T) {
	base := MustNew(at(9, 0), at(10, 0))

	cases := []struct {
		name  string
		other Interval
		want  bool
	}{
		{"identical", MustNew(at(9, 0), at(10, 0)), true},
		{"partial tail", MustNew(at(9, 30), at(10, 30)), true},
		{"partial head", MustNew(at(8, 30), at(9, 1)), true},
		{"contained", MustNew(at(9, 15), at(9, 45)), true},
		{"containing", MustNew(at(8, 0), at(11, 0)), true},
		{"adjacent after", MustNew(at(10, 0), at(11, 0)), false},
		{"adjacent before", MustNew(at(8, 0), at(9, 0)), false},
		{"disjoint", MustNew(at(12, 0), at(13, 0)), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(base, tc.other))
			assert.Equal(t, tc.want, Overlaps(tc.other, base))
		})
	}
}

func randomInterval(faker *gofakeit.Faker, origin time.Time) Interval {
	start := origin.Add(time.Duration(faker.IntRange(0, 600)) * time.Minute)
	end := start.Add(time.Duration(faker.IntRange(1, 180)) * time.Minute)
	return MustNew(start, end)
}

func TestOverlaps_Properties(t *testing.T) {
	faker := gofakeit.New(42)
	origin := at(0, 0)

	for i := 0; i < 500; i++ {
		a := randomInterval(faker, origin)
		b := randomInterval(faker, origin)

		assert.Equal(t, Overlaps(a, b), Overlaps(b, a), "symmetry for %v %v", a, b)
		assert.True(t, Overlaps(a, a), "reflexive for %v", a)

		next := MustNew(a.End, a.End.Add(time.Minute))
		assert.False(t, Overlaps(a, next), "adjacent for %v", a)
	}
}

func TestClip(t *testing.T) {
	window := MustNew(at(9, 0), at(12, 0))

	c, ok := window.Clip(MustNew(at(8, 0), at(10, 0)))
	require.True(t, ok)
	assert.Equal(t, at(9, 0), c.Start)
	assert.Equal(t, at(10, 0), c.End)

	_, ok = window.Clip(MustNew(at(12, 0), at(13, 0)))
	assert.False(t, ok)
}

func TestPeakConcurrency(t *testing.T) {
	window := MustNew(at(9, 0), at(12, 0))

	assert.Equal(t, 0, PeakConcurrency(window, nil))

	// two bookings that never coexist count as one unit in use
	sequential := []Interval{
		MustNew(at(9, 0), at(10, 0)),
		MustNew(at(10, 0), at(11, 0)),
	}
	assert.Equal(t, 1, PeakConcurrency(window, sequential))

	stacked := []Interval{
		MustNew(at(9, 0), at(11, 0)),
		MustNew(at(10, 0), at(12, 0)),
		MustNew(at(10, 30), at(10, 45)),
		MustNew(at(13, 0), at(14, 0)),
	}
	assert.Equal(t, 3, PeakConcurrency(window, stacked))
}

func TestContains(t *testing.T) {
	iv := MustNew(at(9, 0), at(10, 0))
	assert.True(t, iv.Contains(at(9, 0)))
	assert.True(t, iv.Contains(at(9, 59)))
	assert.False(t, iv.Contains(at(10, 0)))
	assert.Equal(t, time.Hour, iv.Duration())
}
