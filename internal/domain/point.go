package domain

import (
	"fmt"
	"time"

	"github.com/twpayne/go-geom"
)

// Point is a landslide location with the date parts of the recorded event.
type Point struct {
	ID    int64
	Geom  *geom.Point
	Day   int
	Month int
	Year  int
}

// NewPoint builds a Point from lon/lat in EPSG:4326.
func NewPoint(id int64, lon, lat float64, day, month, year int) Point {
	return Point{
		ID:    id,
		Geom:  geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326),
		Day:   day,
		Month: month,
		Year:  year,
	}
}

// Lon returns the point longitude, or 0 when the geometry is missing.
func (p Point) Lon() float64 {
	if p.Geom == nil {
		return 0
	}
	return p.Geom.X()
}

// Lat returns the point latitude, or 0 when the geometry is missing.
func (p Point) Lat() float64 {
	if p.Geom == nil {
		return 0
	}
	return p.Geom.Y()
}

// EventDate resolves the point's DD/MM/YYYY fields.
func (p Point) EventDate() (time.Time, error) {
	return ResolveEventDate(p.Day, p.Month, p.Year)
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Query describes one windowed archive lookup for a point.
type Query struct {
	Point     Point
	EventDate time.Time
	Window    Window
}

// Sample is one reduced archive image at a point. Value is nil when the image
// has no coverage at the point.
type Sample struct {
	PointID   int64
	Lon       float64
	Lat       float64
	Timestamp time.Time
	Value     *float64
}
