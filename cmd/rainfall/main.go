package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/adapter/drive"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/adapter/earthengine"
	httpadapter "github.com/couchcryptid/landslide-rainfall-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/landslide-rainfall-etl/internal/adapter/kafka"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/adapter/localfile"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/adapter/objectstore"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/adapter/pointfile"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/config"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/observability"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/pipeline"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	logger := observability.NewLogger(cfg).With("run_id", runID)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, runID, logger, metrics); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger, metrics *observability.Metrics) error {
	layout, err := domain.ParseDateLayout(cfg.DateFormat)
	if err != nil {
		return err
	}

	client, err := earthengine.NewClient(ctx, earthengine.Options{
		Project:         cfg.EEProject,
		CredentialsFile: cfg.EECredentialsFile,
		Endpoint:        cfg.EEEndpoint,
		Timeout:         cfg.EETimeout,
	}, logger)
	if err != nil {
		return err
	}

	var source pipeline.PointSource
	if cfg.PointsFile != "" {
		source = pointfile.NewLoader(cfg.PointsFile)
		logger.Info("points from file", "path", cfg.PointsFile)
	} else {
		source = earthengine.NewTableSource(client, cfg.PointsTable)
		logger.Info("points from earth engine table", "table", cfg.PointsTable)
	}

	archive := earthengine.NewArchive(client, cfg.Collection, cfg.Band, cfg.ReduceScale, logger)

	exporter, closeExporter, err := newExporter(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}
	defer closeExporter()

	p := pipeline.New(source, archive, exporter, pipeline.Options{
		LookbackDays:  cfg.LookbackDays,
		LookaheadDays: cfg.LookaheadDays,
		MaxID:         cfg.PointsMaxID,
		Concurrency:   cfg.QueryConcurrency,
		Layout:        layout,
	}, logger, metrics)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	logger.Info("run started",
		"collection", cfg.Collection,
		"band", cfg.Band,
		"scale", cfg.ReduceScale,
		"sink", exporter.Name(),
		"export_name", cfg.ExportName,
	)
	report, err := p.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("run summary",
		"points", report.Points,
		"filtered", report.Filtered,
		"skipped", report.Skipped,
		"queries", report.Queries,
		"rows", report.Rows,
		"missing", report.Missing,
	)
	if cfg.HTTPAddr != "" {
		// Keep /readyz and /status reachable after the export lands.
		logger.Info("status server lingering", "addr", cfg.HTTPAddr, "for", cfg.ShutdownTimeout)
		holdOpen(ctx, clockwork.NewRealClock(), cfg.ShutdownTimeout)
	}
	return nil
}

// holdOpen blocks for d or until ctx is cancelled.
func holdOpen(ctx context.Context, clock clockwork.Clock, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-clock.After(d):
	}
}

// newExporter builds the configured sink and its cleanup.
func newExporter(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger) (pipeline.Exporter, func(), error) {
	noop := func() {}
	switch cfg.ExportSink {
	case config.SinkFile:
		return localfile.NewWriter(cfg.OutputDir, cfg.ExportName, logger), noop, nil
	case config.SinkDrive:
		w, err := drive.NewWriter(ctx, drive.Options{CredentialsFile: cfg.EECredentialsFile}, cfg.DriveFolder, cfg.ExportName, logger)
		if err != nil {
			return nil, nil, err
		}
		return w, noop, nil
	case config.SinkS3:
		w, err := objectstore.NewWriter(objectstore.Options{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Secure:    cfg.S3Secure,
			Region:    cfg.S3Region,
		}, cfg.ExportName, runID, logger)
		if err != nil {
			return nil, nil, err
		}
		return w, noop, nil
	case config.SinkKafka:
		w := kafkaadapter.NewWriter(cfg, runID, logger)
		return w, func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown export sink %q", cfg.ExportSink)
	}
}
