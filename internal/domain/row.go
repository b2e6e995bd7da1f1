package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout selects how row timestamps are rendered.
type DateLayout string

const (
	// DateLayout24h renders "2006-01-02 15:04".
	DateLayout24h DateLayout = "24h"
	// DateLayoutLegacy renders the earlier 12-hour "yyyy-MM-dd hh:mm" with no
	// AM/PM marker.
	DateLayoutLegacy DateLayout = "legacy"
)

// ParseDateLayout validates a configured layout name.
func ParseDateLayout(s string) (DateLayout, error) {
	switch DateLayout(strings.ToLower(strings.TrimSpace(s))) {
	case DateLayout24h, "":
		return DateLayout24h, nil
	case DateLayoutLegacy:
		return DateLayoutLegacy, nil
	default:
		return "", fmt.Errorf("unknown date layout %q", s)
	}
}

// GoLayout returns the time.Format layout string.
func (l DateLayout) GoLayout() string {
	if l == DateLayoutLegacy {
		return "2006-01-02 03:04"
	}
	return "2006-01-02 15:04"
}

// Format renders t in UTC.
func (l DateLayout) Format(t time.Time) string {
	return t.UTC().Format(l.GoLayout())
}

// Row is one exported line: coord_id, lon, lat, date, value.
type Row struct {
	CoordID int64
	Lon     float64
	Lat     float64
	Date    string
	Value   *float64
}

// Columns is the exported header, in order.
var Columns = []string{"coord_id", "lon", "lat", "date", "value"}

// NewRow flattens a sample into a row.
func NewRow(s Sample, layout DateLayout) (Row, error) {
	if s.Timestamp.IsZero() {
		return Row{}, fmt.Errorf("sample for point %d: timestamp: %w", s.PointID, ErrMissingField)
	}
	return Row{
		CoordID: s.PointID,
		Lon:     s.Lon,
		Lat:     s.Lat,
		Date:    layout.Format(s.Timestamp),
		Value:   s.Value,
	}, nil
}

// Record returns the row as CSV fields. A missing value is an empty field.
func (r Row) Record() []string {
	value := ""
	if r.Value != nil {
		value = FormatNumber(*r.Value)
	}
	return []string{
		strconv.FormatInt(r.CoordID, 10),
		FormatNumber(r.Lon),
		FormatNumber(r.Lat),
		r.Date,
		value,
	}
}

// FormatNumber renders the shortest decimal that round-trips.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
