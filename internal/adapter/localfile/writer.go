// Package localfile writes the exported CSV to the local filesystem.
package localfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

// Writer writes <dir>/<name>.csv. It implements pipeline.Exporter.
type Writer struct {
	dir    string
	name   string
	logger *slog.Logger
}

// NewWriter creates a file sink.
func NewWriter(dir, name string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, name: name, logger: logger}
}

// Name returns the sink label used in metrics.
func (w *Writer) Name() string { return "file" }

// Path returns the destination file path.
func (w *Writer) Path() string {
	return filepath.Join(w.dir, w.name+".csv")
}

// Export replaces the destination file atomically: rows go to a temp file in
// the same directory which is renamed over the target.
func (w *Writer) Export(ctx context.Context, rows []domain.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, w.name+"-*.csv.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if err := domain.WriteCSV(tmp, rows); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("write %s: %w", w.Path(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), w.Path()); err != nil {
		return fmt.Errorf("rename to %s: %w", w.Path(), err)
	}

	w.logger.Info("export written", "sink", w.Name(), "path", w.Path(), "rows", len(rows))
	return nil
}
