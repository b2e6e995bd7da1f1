package pipeline

import (
	"fmt"
	"slices"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

func filterMaxID(points []domain.Point, maxID int64) []domain.Point {
	if maxID <= 0 {
		return points
	}
	kept := make([]domain.Point, 0, len(points))
	for _, pt := range points {
		if pt.ID <= maxID {
			kept = append(kept, pt)
		}
	}
	return kept
}

// buildQueries resolves every point's window before anything is queried.
// Points that cannot be resolved are logged, counted and dropped.
func (p *Pipeline) buildQueries(points []domain.Point) []domain.Query {
	queries := make([]domain.Query, 0, len(points))
	for _, pt := range points {
		q, err := domain.NewQuery(pt, p.opts.LookbackDays, p.opts.LookaheadDays)
		if err != nil {
			p.logger.Warn("point skipped", "point_id", pt.ID, "error", err)
			p.metrics.PointsSkipped.Inc()
			continue
		}
		queries = append(queries, q)
	}
	return queries
}

type flattenStats struct {
	samples int
	missing int
}

// flatten turns per-query samples into rows: points in query order, each
// point's samples in timestamp order.
func flatten(queries []domain.Query, results [][]domain.Sample, layout domain.DateLayout) ([]domain.Row, flattenStats, error) {
	var stats flattenStats
	total := 0
	for _, samples := range results {
		total += len(samples)
	}
	rows := make([]domain.Row, 0, total)

	for i, samples := range results {
		sorted := slices.Clone(samples)
		slices.SortStableFunc(sorted, func(a, b domain.Sample) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		for _, s := range sorted {
			row, err := domain.NewRow(s, layout)
			if err != nil {
				return nil, stats, fmt.Errorf("flatten point %d: %w", queries[i].Point.ID, err)
			}
			if s.Value == nil {
				stats.missing++
			}
			rows = append(rows, row)
		}
		stats.samples += len(samples)
	}
	return rows, stats, nil
}
