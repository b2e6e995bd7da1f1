package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/observability"
)

// PointSource reads the landslide point dataset.
type PointSource interface {
	LoadPoints(ctx context.Context) ([]domain.Point, error)
}

// Archive returns the reduced per-image samples for one windowed query.
type Archive interface {
	Samples(ctx context.Context, q domain.Query) ([]domain.Sample, error)
}

// Exporter writes the flattened rows to a destination.
type Exporter interface {
	Name() string
	Export(ctx context.Context, rows []domain.Row) error
}

// Options tunes a run.
type Options struct {
	LookbackDays  int
	LookaheadDays int
	MaxID         int64 // keep points with ID <= MaxID; 0 keeps all
	Concurrency   int
	Layout        domain.DateLayout
}

// Report summarizes a run.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Points     int       `json:"points"`   // read from the source
	Filtered   int       `json:"filtered"` // dropped by MaxID
	Skipped    int       `json:"skipped"`  // invalid date or geometry
	Queries    int       `json:"queries"`
	Samples    int       `json:"samples"`
	Missing    int       `json:"missing"` // samples without coverage
	Rows       int       `json:"rows"`
}

// Run states reported by Status.
const (
	StatePending = "pending"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// Status is a snapshot of the current or last run.
type Status struct {
	State  string  `json:"state"`
	Report *Report `json:"report,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Pipeline runs load → query → flatten → export once.
type Pipeline struct {
	source   PointSource
	archive  Archive
	exporter Exporter
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	mu     sync.Mutex
	status Status
}

// New creates a Pipeline with the given stages and observability.
func New(s PointSource, a Archive, e Exporter, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Layout == "" {
		opts.Layout = domain.DateLayout24h
	}
	return &Pipeline{
		source:   s,
		archive:  a,
		exporter: e,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		status:   Status{State: StatePending},
	}
}

// Status returns the state of the current or last run.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status
	if st.Report != nil {
		r := *st.Report
		st.Report = &r
	}
	return st
}

func (p *Pipeline) setStatus(state string, report Report, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = Status{State: state, Report: &report}
	if err != nil {
		p.status.Error = err.Error()
	}
}

// CheckReadiness returns nil once a run has exported its rows.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("export has not completed yet")
	}
	return nil
}

// Run executes one extraction. Any archive or export failure aborts the run;
// points with an invalid date are skipped.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: domain.Clock().Now().UTC()}
	p.setStatus(StateRunning, report, nil)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	report, err := p.run(ctx, report)
	if err != nil {
		p.setStatus(StateFailed, report, err)
		return report, err
	}
	p.setStatus(StateDone, report, nil)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, report Report) (Report, error) {
	clock := domain.Clock()

	points, err := p.source.LoadPoints(ctx)
	if err != nil {
		return report, fmt.Errorf("load points: %w", err)
	}
	report.Points = len(points)
	p.metrics.PointsLoaded.Add(float64(len(points)))

	kept := filterMaxID(points, p.opts.MaxID)
	report.Filtered = len(points) - len(kept)

	queries := p.buildQueries(kept)
	report.Skipped = len(kept) - len(queries)
	report.Queries = len(queries)
	p.logger.Info("queries built",
		"points", report.Points,
		"filtered", report.Filtered,
		"skipped", report.Skipped,
		"queries", report.Queries,
		"concurrency", p.opts.Concurrency,
	)

	results, err := p.fetch(ctx, queries)
	if err != nil {
		return report, err
	}

	rows, stats, err := flatten(queries, results, p.opts.Layout)
	if err != nil {
		return report, err
	}
	report.Samples = stats.samples
	report.Missing = stats.missing
	p.metrics.Samples.Add(float64(stats.samples))
	p.metrics.SamplesMissing.Add(float64(stats.missing))

	start := clock.Now()
	if err := p.exporter.Export(ctx, rows); err != nil {
		return report, fmt.Errorf("export to %s: %w", p.exporter.Name(), err)
	}
	p.metrics.ExportDuration.Observe(clock.Since(start).Seconds())
	p.metrics.RowsExported.WithLabelValues(p.exporter.Name()).Add(float64(len(rows)))
	report.Rows = len(rows)
	p.ready.Store(true)

	report.FinishedAt = clock.Now().UTC()
	p.logger.Info("run complete",
		"sink", p.exporter.Name(),
		"rows", report.Rows,
		"samples", report.Samples,
		"missing", report.Missing,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

// fetch runs every query through a bounded pool. results[i] belongs to
// queries[i] regardless of completion order. The first failure cancels the
// remaining queries.
func (p *Pipeline) fetch(ctx context.Context, queries []domain.Query) ([][]domain.Sample, error) {
	results := make([][]domain.Sample, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i := range queries {
		q := queries[i]
		g.Go(func() error {
			start := domain.Clock().Now()
			samples, err := p.archive.Samples(gctx, q)
			p.metrics.QueryDuration.Observe(domain.Clock().Since(start).Seconds())
			if err != nil {
				p.metrics.Queries.WithLabelValues("error").Inc()
				p.logger.Error("archive query failed", "point_id", q.Point.ID, "error", err)
				return fmt.Errorf("query point %d: %w", q.Point.ID, err)
			}
			outcome := "success"
			if len(samples) == 0 {
				outcome = "empty"
			}
			p.metrics.Queries.WithLabelValues(outcome).Inc()
			p.logger.Debug("archive query done", "point_id", q.Point.ID, "samples", len(samples))
			results[i] = samples
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
