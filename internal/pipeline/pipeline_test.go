package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/observability"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/pipeline"
)

// --- mocks ---

type mockSource struct {
	points []domain.Point
	err    error
}

func (m *mockSource) LoadPoints(_ context.Context) ([]domain.Point, error) {
	return m.points, m.err
}

// mockArchive returns canned samples per point id. Offsets are relative to
// the window start; a nil entry in values marks a sample without coverage.
type mockArchive struct {
	offsets map[int64][]time.Duration
	values  map[int64][]*float64
	errFor  int64
	delay   time.Duration

	mu       sync.Mutex
	queried  []int64
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (m *mockArchive) Samples(ctx context.Context, q domain.Query) ([]domain.Sample, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	m.mu.Lock()
	m.queried = append(m.queried, q.Point.ID)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.errFor != 0 && q.Point.ID == m.errFor {
		return nil, errors.New("quota exceeded")
	}

	offsets := m.offsets[q.Point.ID]
	out := make([]domain.Sample, 0, len(offsets))
	for i, off := range offsets {
		var v *float64
		if vals := m.values[q.Point.ID]; i < len(vals) {
			v = vals[i]
		}
		out = append(out, domain.Sample{
			PointID:   q.Point.ID,
			Lon:       q.Point.Lon(),
			Lat:       q.Point.Lat(),
			Timestamp: q.Window.Start.Add(off),
			Value:     v,
		})
	}
	return out, nil
}

type mockExporter struct {
	rows  []domain.Row
	err   error
	calls int
}

func (m *mockExporter) Name() string { return "mock" }

func (m *mockExporter) Export(_ context.Context, rows []domain.Row) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.rows = rows
	return nil
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultOptions() pipeline.Options {
	return pipeline.Options{
		LookbackDays:  domain.DefaultLookbackDays,
		LookaheadDays: domain.DefaultLookaheadDays,
		Concurrency:   4,
		Layout:        domain.DateLayout24h,
	}
}

func ptr(v float64) *float64 { return &v }

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	if pb.GetGauge() != nil {
		return pb.GetGauge().GetValue()
	}
	return pb.GetCounter().GetValue()
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	src := &mockSource{points: []domain.Point{
		domain.NewPoint(1, 110.2466, -7.4797, 5, 3, 2018),
		domain.NewPoint(2, 110.1531, -7.5562, 17, 11, 2018),
	}}
	arc := &mockArchive{
		offsets: map[int64][]time.Duration{
			// Out of order on purpose.
			1: {time.Hour, 0, 30 * time.Minute},
			2: {0},
		},
		values: map[int64][]*float64{
			1: {ptr(1.5), ptr(0), nil},
			2: {ptr(0.25)},
		},
	}
	exp := &mockExporter{}
	metrics := newTestMetrics()

	p := pipeline.New(src, arc, exp, defaultOptions(), discardLogger(), metrics)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	want := []domain.Row{
		{CoordID: 1, Lon: 110.2466, Lat: -7.4797, Date: "2018-02-23 00:00", Value: ptr(0)},
		{CoordID: 1, Lon: 110.2466, Lat: -7.4797, Date: "2018-02-23 00:30"},
		{CoordID: 1, Lon: 110.2466, Lat: -7.4797, Date: "2018-02-23 01:00", Value: ptr(1.5)},
		{CoordID: 2, Lon: 110.1531, Lat: -7.5562, Date: "2018-11-07 00:00", Value: ptr(0.25)},
	}
	if diff := cmp.Diff(want, exp.rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 2, report.Points)
	assert.Equal(t, 2, report.Queries)
	assert.Equal(t, 4, report.Samples)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 4, report.Rows)
	require.NoError(t, p.CheckReadiness(context.Background()))

	assert.InDelta(t, 2, metricValue(t, metrics.PointsLoaded), 0)
	assert.InDelta(t, 4, metricValue(t, metrics.Samples), 0)
	assert.InDelta(t, 1, metricValue(t, metrics.SamplesMissing), 0)
	assert.InDelta(t, 4, metricValue(t, metrics.RowsExported.WithLabelValues("mock")), 0)
	assert.InDelta(t, 2, metricValue(t, metrics.Queries.WithLabelValues("success")), 0)
	assert.InDelta(t, 0, metricValue(t, metrics.PipelineRunning), 0)
}

func TestPipeline_Run_PointRowsShareCoordinates(t *testing.T) {
	src := &mockSource{points: []domain.Point{domain.NewPoint(9, 110.3, -7.5, 1, 1, 2018)}}
	arc := &mockArchive{offsets: map[int64][]time.Duration{
		9: {0, 30 * time.Minute, time.Hour, 90 * time.Minute},
	}}
	exp := &mockExporter{}

	_, err := pipeline.New(src, arc, exp, defaultOptions(), discardLogger(), newTestMetrics()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, exp.rows, 4)
	for _, r := range exp.rows {
		assert.Equal(t, int64(9), r.CoordID)
		assert.InDelta(t, 110.3, r.Lon, 0)
		assert.InDelta(t, -7.5, r.Lat, 0)
		assert.Nil(t, r.Value)
	}
}

func TestPipeline_Run_NoImages(t *testing.T) {
	src := &mockSource{points: []domain.Point{
		domain.NewPoint(1, 110.2, -7.4, 5, 3, 2018),
		domain.NewPoint(2, 110.1, -7.5, 6, 3, 2018),
	}}
	arc := &mockArchive{offsets: map[int64][]time.Duration{2: {0}}}
	exp := &mockExporter{}
	metrics := newTestMetrics()

	_, err := pipeline.New(src, arc, exp, defaultOptions(), discardLogger(), metrics).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, exp.rows, 1)
	assert.Equal(t, int64(2), exp.rows[0].CoordID)
	assert.InDelta(t, 1, metricValue(t, metrics.Queries.WithLabelValues("empty")), 0)
}

func TestPipeline_Run_SkipsInvalidDates(t *testing.T) {
	src := &mockSource{points: []domain.Point{
		domain.NewPoint(1, 110.2, -7.4, 31, 4, 2018), // 31 April
		domain.NewPoint(2, 110.1, -7.5, 6, 3, 2018),
		{ID: 3, Day: 1, Month: 1, Year: 2018}, // no geometry
	}}
	arc := &mockArchive{offsets: map[int64][]time.Duration{1: {0}, 2: {0}, 3: {0}}}
	exp := &mockExporter{}
	metrics := newTestMetrics()

	report, err := pipeline.New(src, arc, exp, defaultOptions(), discardLogger(), metrics).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{2}, arc.queried)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Rows)
	assert.InDelta(t, 2, metricValue(t, metrics.PointsSkipped), 0)
}

func TestPipeline_Run_MaxID(t *testing.T) {
	src := &mockSource{points: []domain.Point{
		domain.NewPoint(1, 110.2, -7.4, 5, 3, 2018),
		domain.NewPoint(3, 110.1, -7.5, 6, 3, 2018),
		domain.NewPoint(2, 110.0, -7.6, 7, 3, 2018),
	}}
	arc := &mockArchive{offsets: map[int64][]time.Duration{1: {0}, 2: {0}, 3: {0}}}
	exp := &mockExporter{}

	opts := defaultOptions()
	opts.MaxID = 2
	report, err := pipeline.New(src, arc, exp, opts, discardLogger(), newTestMetrics()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Filtered)
	require.Len(t, exp.rows, 2)
	assert.Equal(t, int64(1), exp.rows[0].CoordID)
	assert.Equal(t, int64(2), exp.rows[1].CoordID)
}

func TestPipeline_Run_ArchiveErrorAborts(t *testing.T) {
	src := &mockSource{points: []domain.Point{
		domain.NewPoint(1, 110.2, -7.4, 5, 3, 2018),
		domain.NewPoint(2, 110.1, -7.5, 6, 3, 2018),
	}}
	arc := &mockArchive{offsets: map[int64][]time.Duration{1: {0}}, errFor: 2}
	exp := &mockExporter{}
	metrics := newTestMetrics()

	p := pipeline.New(src, arc, exp, defaultOptions(), discardLogger(), metrics)
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "point 2")
	assert.Contains(t, err.Error(), "quota exceeded")

	assert.Zero(t, exp.calls, "nothing is exported after a failed query")
	require.Error(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, metricValue(t, metrics.Queries.WithLabelValues("error")), 0)
}

func TestPipeline_Run_SourceError(t *testing.T) {
	src := &mockSource{err: errors.New("table not found")}
	exp := &mockExporter{}

	_, err := pipeline.New(src, &mockArchive{}, exp, defaultOptions(), discardLogger(), newTestMetrics()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load points")
	assert.Zero(t, exp.calls)
}

func TestPipeline_Run_ExportError(t *testing.T) {
	src := &mockSource{points: []domain.Point{domain.NewPoint(1, 110.2, -7.4, 5, 3, 2018)}}
	exp := &mockExporter{err: errors.New("disk full")}

	p := pipeline.New(src, &mockArchive{}, exp, defaultOptions(), discardLogger(), newTestMetrics())
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export to mock")
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_BoundedConcurrency(t *testing.T) {
	points := make([]domain.Point, 12)
	for i := range points {
		points[i] = domain.NewPoint(int64(i+1), 110, -7, 5, 3, 2018)
	}
	arc := &mockArchive{delay: 20 * time.Millisecond}
	exp := &mockExporter{}

	opts := defaultOptions()
	opts.Concurrency = 3
	_, err := pipeline.New(&mockSource{points: points}, arc, exp, opts, discardLogger(), newTestMetrics()).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, arc.queried, 12)
	assert.LessOrEqual(t, arc.maxSeen.Load(), int32(3))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	src := &mockSource{points: []domain.Point{domain.NewPoint(1, 110.2, -7.4, 5, 3, 2018)}}
	arc := &mockArchive{delay: time.Second}
	exp := &mockExporter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.New(src, arc, exp, defaultOptions(), discardLogger(), newTestMetrics()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, exp.calls)
}

func TestPipeline_Run_LegacyLayout(t *testing.T) {
	src := &mockSource{points: []domain.Point{domain.NewPoint(1, 110.2, -7.4, 5, 3, 2018)}}
	arc := &mockArchive{offsets: map[int64][]time.Duration{1: {13*time.Hour + 30*time.Minute}}}
	exp := &mockExporter{}

	opts := defaultOptions()
	opts.Layout = domain.DateLayoutLegacy
	_, err := pipeline.New(src, arc, exp, opts, discardLogger(), newTestMetrics()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, exp.rows, 1)
	assert.Equal(t, "2018-02-23 01:30", exp.rows[0].Date)
}

func TestPipeline_Run_ReportTimestamps(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() {
		domain.SetClock(nil)
	})

	src := &mockSource{}
	report, err := pipeline.New(src, &mockArchive{}, &mockExporter{}, defaultOptions(), discardLogger(), newTestMetrics()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fakeClock.Now(), report.StartedAt)
	assert.Equal(t, fakeClock.Now(), report.FinishedAt)
	assert.Zero(t, report.Rows)
}

func TestPipeline_CheckReadiness_BeforeRun(t *testing.T) {
	p := pipeline.New(&mockSource{}, &mockArchive{}, &mockExporter{}, defaultOptions(), discardLogger(), newTestMetrics())
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Status(t *testing.T) {
	src := &mockSource{points: []domain.Point{domain.NewPoint(1, 110.2, -7.4, 5, 3, 2018)}}
	arc := &mockArchive{offsets: map[int64][]time.Duration{1: {0, time.Hour}}}

	p := pipeline.New(src, arc, &mockExporter{}, defaultOptions(), discardLogger(), newTestMetrics())
	assert.Equal(t, pipeline.Status{State: pipeline.StatePending}, p.Status())

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	st := p.Status()
	assert.Equal(t, pipeline.StateDone, st.State)
	require.NotNil(t, st.Report)
	assert.Equal(t, 2, st.Report.Rows)
	assert.Empty(t, st.Error)
}

func TestPipeline_Status_Failed(t *testing.T) {
	p := pipeline.New(&mockSource{err: errors.New("no table")}, &mockArchive{}, &mockExporter{}, defaultOptions(), discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background())
	require.Error(t, err)

	st := p.Status()
	assert.Equal(t, pipeline.StateFailed, st.State)
	assert.Contains(t, st.Error, "no table")
}
