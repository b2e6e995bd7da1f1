package main

import (
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

// exportRow is a data line that passed field validation.
type exportRow struct {
	line    int
	coordID int64
	lon     float64
	lat     float64
	date    time.Time
}

func validateHeader(header []string) *phase {
	p := &phase{name: "Phase 1: Header"}
	if !slices.Equal(header, domain.Columns) {
		p.errorf("header %v, want %v", header, domain.Columns)
	}
	return p
}

// validateFields checks each record's field formats and returns the rows
// that parsed.
func validateFields(rows [][]string, layout domain.DateLayout) ([]exportRow, *phase) {
	p := &phase{name: "Phase 2: Field formats"}
	parsed := make([]exportRow, 0, len(rows))

	for i, rec := range rows {
		line := i + 2
		if len(rec) != len(domain.Columns) {
			p.errorf("line %d: %d fields, want %d", line, len(rec), len(domain.Columns))
			continue
		}
		ok := true
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			p.errorf("line %d: coord_id %q is not an integer", line, rec[0])
			ok = false
		}
		lon, err := strconv.ParseFloat(rec[1], 64)
		if err != nil || math.Abs(lon) > 180 {
			p.errorf("line %d: lon %q out of range", line, rec[1])
			ok = false
		}
		lat, err := strconv.ParseFloat(rec[2], 64)
		if err != nil || math.Abs(lat) > 90 {
			p.errorf("line %d: lat %q out of range", line, rec[2])
			ok = false
		}
		date, err := time.ParseInLocation(layout.GoLayout(), rec[3], time.UTC)
		if err != nil {
			p.errorf("line %d: date %q does not match %s", line, rec[3], layout.GoLayout())
			ok = false
		}
		if rec[4] != "" {
			v, err := strconv.ParseFloat(rec[4], 64)
			if err != nil || v < 0 || math.IsNaN(v) {
				p.errorf("line %d: value %q is not a non-negative number", line, rec[4])
				ok = false
			}
		}
		if ok {
			parsed = append(parsed, exportRow{line: line, coordID: id, lon: lon, lat: lat, date: date})
		}
	}
	return parsed, p
}

// validateConsistency checks that a point's rows share coordinates, are
// contiguous and are in date order. Legacy 12-hour dates are not orderable
// and skip the order check.
func validateConsistency(rows []exportRow, layout domain.DateLayout) *phase {
	p := &phase{name: "Phase 3: Per-point consistency"}
	first := make(map[int64]exportRow)
	closed := make(map[int64]bool)

	for i, r := range rows {
		f, seen := first[r.coordID]
		if !seen {
			first[r.coordID] = r
		} else if f.lon != r.lon || f.lat != r.lat {
			p.errorf("line %d: coord_id %d at (%v, %v), line %d had (%v, %v)",
				r.line, r.coordID, r.lon, r.lat, f.line, f.lon, f.lat)
		}
		if closed[r.coordID] {
			p.errorf("line %d: coord_id %d rows are not contiguous", r.line, r.coordID)
		}
		if i > 0 {
			prev := rows[i-1]
			if prev.coordID != r.coordID {
				closed[prev.coordID] = true
			} else if layout != domain.DateLayoutLegacy && r.date.Before(prev.date) {
				p.errorf("line %d: coord_id %d date goes backwards", r.line, r.coordID)
			}
		}
	}
	return p
}

// validateWindows checks every row against its point's window. Legacy dates
// carry no AM/PM marker, so only the calendar day is compared.
func validateWindows(rows []exportRow, points []domain.Point, opts options) *phase {
	p := &phase{name: "Phase 4: Windows vs points file"}

	windows := make(map[int64]domain.Window, len(points))
	for _, pt := range points {
		q, err := domain.NewQuery(pt, opts.lookback, opts.lookahead)
		if err != nil {
			continue
		}
		windows[pt.ID] = q.Window
	}

	for _, r := range rows {
		w, ok := windows[r.coordID]
		if !ok {
			p.errorf("line %d: coord_id %d not in points file or has no valid date", r.line, r.coordID)
			continue
		}
		if !inWindow(w, r.date, opts.layout) {
			p.errorf("line %d: coord_id %d date %s outside %s", r.line, r.coordID, r.date.Format(time.DateTime), w)
		}
	}
	return p
}

func inWindow(w domain.Window, t time.Time, layout domain.DateLayout) bool {
	if layout == domain.DateLayoutLegacy {
		day := t.Truncate(24 * time.Hour)
		return !day.Before(w.Start) && day.Before(w.End)
	}
	return w.Contains(t)
}

func countPoints(rows []exportRow) int {
	ids := make(map[int64]struct{})
	for _, r := range rows {
		ids[r.coordID] = struct{}{}
	}
	return len(ids)
}
