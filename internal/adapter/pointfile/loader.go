package pointfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

// Loader reads points from a local .csv, .json or .geojson file.
// It implements pipeline.PointSource.
type Loader struct {
	path string
}

// NewLoader creates a file-backed point source.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// LoadPoints reads every point in the file, in file order.
func (l *Loader) LoadPoints(_ context.Context) ([]domain.Point, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open points file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(l.path)) {
	case ".csv":
		return ReadCSV(f)
	case ".json", ".geojson":
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read points file: %w", err)
		}
		return DecodeFeatureCollection(data)
	default:
		return nil, fmt.Errorf("unsupported points file extension %q", filepath.Ext(l.path))
	}
}

// csvColumns are the required CSV header names, matched case-insensitively.
var csvColumns = []string{FieldID, "lon", "lat", FieldDay, FieldMonth, FieldYear}

// ReadCSV parses a header row followed by ID,lon,lat,DD,MM,YYYY records.
// Column order is taken from the header. ID and date parts must be integers.
// A record with empty lon and lat yields a point with a nil Geom.
func ReadCSV(r io.Reader) ([]domain.Point, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("points csv: empty file")
		}
		return nil, fmt.Errorf("points csv header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	for _, c := range csvColumns {
		if _, ok := colIdx[strings.ToUpper(c)]; !ok {
			return nil, fmt.Errorf("points csv: column %s: %w", c, domain.ErrMissingField)
		}
	}

	var points []domain.Point
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("points csv line %d: %w", line, err)
		}

		var ints [4]int64
		for i, c := range []string{FieldID, FieldDay, FieldMonth, FieldYear} {
			v, err := parseInteger(c, get(row, colIdx, c))
			if err != nil {
				return nil, fmt.Errorf("points csv line %d: %w", line, err)
			}
			ints[i] = v
		}

		lonText, latText := get(row, colIdx, "lon"), get(row, colIdx, "lat")
		if lonText == "" && latText == "" {
			// No coordinates: kept so the pipeline can skip and count it.
			points = append(points, domain.Point{ID: ints[0], Day: int(ints[1]), Month: int(ints[2]), Year: int(ints[3])})
			continue
		}
		lon, err := parseNumber("lon", lonText)
		if err != nil {
			return nil, fmt.Errorf("points csv line %d: %w", line, err)
		}
		lat, err := parseNumber("lat", latText)
		if err != nil {
			return nil, fmt.Errorf("points csv line %d: %w", line, err)
		}
		points = append(points, domain.NewPoint(ints[0], lon, lat, int(ints[1]), int(ints[2]), int(ints[3])))
	}
	return points, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[strings.ToUpper(col)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
