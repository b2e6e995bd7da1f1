// Package pointfile reads landslide points from GeoJSON and CSV.
package pointfile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

// Attribute names carried by every landslide feature.
const (
	FieldID    = "ID"
	FieldDay   = "DD"
	FieldMonth = "MM"
	FieldYear  = "YYYY"
)

// DecodeFeatureCollection converts a GeoJSON FeatureCollection into points.
// A feature without a point geometry yields a point with a nil Geom, which
// the pipeline skips and counts. Missing or non-integer attributes reject the
// collection.
func DecodeFeatureCollection(data []byte) ([]domain.Point, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	points := make([]domain.Point, 0, len(fc.Features))
	for i, f := range fc.Features {
		p, err := FeatureToPoint(f)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		points = append(points, p)
	}
	return points, nil
}

// FeatureToPoint reads ID/DD/MM/YYYY and the point geometry from a feature.
// Geom is nil when the feature has no point geometry.
func FeatureToPoint(f *geojson.Feature) (domain.Point, error) {
	if f == nil {
		return domain.Point{}, fmt.Errorf("nil feature: %w", domain.ErrMissingField)
	}

	var vals [4]int64
	for i, key := range []string{FieldID, FieldDay, FieldMonth, FieldYear} {
		v, err := integerProperty(f.Properties, key)
		if err != nil {
			return domain.Point{}, err
		}
		vals[i] = v
	}

	pt, ok := f.Geometry.(*geom.Point)
	if !ok || pt == nil || pt.Empty() {
		return domain.Point{ID: vals[0], Day: int(vals[1]), Month: int(vals[2]), Year: int(vals[3])}, nil
	}
	return domain.NewPoint(vals[0], pt.X(), pt.Y(), int(vals[1]), int(vals[2]), int(vals[3])), nil
}

// integerProperty accepts JSON numbers and numeric strings, since tables
// uploaded from spreadsheets often carry date parts as text. Values with a
// fractional part are rejected.
func integerProperty(props map[string]any, key string) (int64, error) {
	v, ok := props[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("property %s: %w", key, domain.ErrMissingField)
	}
	switch n := v.(type) {
	case float64:
		return toInteger(key, n)
	case json.Number:
		return parseInteger(key, n.String())
	case string:
		return parseInteger(key, n)
	default:
		return 0, fmt.Errorf("property %s: unexpected type %T", key, v)
	}
}

func parseNumber(key, s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("property %s: %q is not a number", key, s)
	}
	return f, nil
}

// parseInteger accepts "12" and "12.0" but not "12.5".
func parseInteger(key, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := parseNumber(key, s)
	if err != nil {
		return 0, err
	}
	return toInteger(key, f)
}

func toInteger(key string, f float64) (int64, error) {
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("property %s: %v is not an integer", key, f)
	}
	return int64(f), nil
}
