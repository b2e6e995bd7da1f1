package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEventDate(t *testing.T) {
	t.Run("zero pads month and day", func(t *testing.T) {
		got, err := ResolveEventDate(5, 3, 2018)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2018, time.March, 5, 0, 0, 0, 0, time.UTC), got)
		assert.Equal(t, "2018-03-05", got.Format(time.DateOnly))
	})

	t.Run("two digit parts", func(t *testing.T) {
		got, err := ResolveEventDate(31, 12, 2017)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2017, time.December, 31, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("leap day", func(t *testing.T) {
		_, err := ResolveEventDate(29, 2, 2020)
		require.NoError(t, err)
	})

	invalid := []struct {
		name             string
		day, month, year int
	}{
		{"day 31 in a 30 day month", 31, 4, 2018},
		{"feb 29 outside leap year", 29, 2, 2018},
		{"month 13", 1, 13, 2018},
		{"day zero", 0, 3, 2018},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolveEventDate(tc.day, tc.month, tc.year)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDate)
		})
	}
}

func TestNewWindow_Bounds(t *testing.T) {
	event := time.Date(2018, time.March, 5, 0, 0, 0, 0, time.UTC)
	w := NewWindow(event, DefaultLookbackDays, DefaultLookaheadDays)

	assert.Equal(t, time.Date(2018, time.February, 23, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2018, time.March, 6, 0, 0, 0, 0, time.UTC), w.End)

	assert.True(t, w.Contains(w.Start), "start is inclusive")
	assert.False(t, w.Contains(w.End), "end is exclusive")
	assert.True(t, w.Contains(w.End.Add(-30*time.Minute)))
	assert.False(t, w.Contains(w.Start.Add(-time.Nanosecond)))
}

func TestNewQuery(t *testing.T) {
	p := NewPoint(7, 110.25, -7.48, 5, 3, 2018)

	q, err := NewQuery(p, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), q.Point.ID)
	assert.Equal(t, time.Date(2018, time.March, 5, 0, 0, 0, 0, time.UTC), q.EventDate)
	assert.Equal(t, 11*24*time.Hour, q.Window.End.Sub(q.Window.Start))
}

func TestNewQuery_InvalidDate(t *testing.T) {
	p := NewPoint(8, 110.25, -7.48, 31, 4, 2018)

	_, err := NewQuery(p, 10, 1)
	require.ErrorIs(t, err, ErrInvalidDate)
	assert.Contains(t, err.Error(), "point 8")
}

func TestNewQuery_MissingGeometry(t *testing.T) {
	_, err := NewQuery(Point{ID: 9, Day: 1, Month: 1, Year: 2018}, 10, 1)
	require.ErrorIs(t, err, ErrMissingField)
}

func TestPoint_Coordinates(t *testing.T) {
	p := NewPoint(1, 110.25, -7.48, 1, 1, 2018)
	assert.InDelta(t, 110.25, p.Lon(), 1e-12)
	assert.InDelta(t, -7.48, p.Lat(), 1e-12)
	assert.Equal(t, 4326, p.Geom.SRID())

	var empty Point
	assert.Zero(t, empty.Lon())
	assert.Zero(t, empty.Lat())
}
