package domain

import (
	"fmt"
	"time"
)

const (
	// DefaultLookbackDays is how far before the event date the window starts.
	DefaultLookbackDays = 10
	// DefaultLookaheadDays is how far after the event date the window ends.
	DefaultLookaheadDays = 1
)

// ResolveEventDate builds "YYYY-MM-DD" from numeric parts and parses it in UTC.
// Out-of-range parts are not corrected; the parser's error is wrapped in
// ErrInvalidDate.
func ResolveEventDate(day, month, year int) (time.Time, error) {
	s := fmt.Sprintf("%d-%02d-%02d", year, month, day)
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %w", ErrInvalidDate, s, err)
	}
	return t, nil
}

// NewWindow returns [eventDate - lookback days, eventDate + lookahead days).
func NewWindow(eventDate time.Time, lookbackDays, lookaheadDays int) Window {
	return Window{
		Start: eventDate.AddDate(0, 0, -lookbackDays),
		End:   eventDate.AddDate(0, 0, lookaheadDays),
	}
}

// NewQuery resolves the point's event date and derives its window.
func NewQuery(p Point, lookbackDays, lookaheadDays int) (Query, error) {
	if p.Geom == nil {
		return Query{}, fmt.Errorf("point %d: geometry: %w", p.ID, ErrMissingField)
	}
	date, err := p.EventDate()
	if err != nil {
		return Query{}, fmt.Errorf("point %d: %w", p.ID, err)
	}
	return Query{
		Point:     p,
		EventDate: date,
		Window:    NewWindow(date, lookbackDays, lookaheadDays),
	}, nil
}
