// Package kafka publishes exported rows to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/config"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes one message per row, keyed by coord_id so a point's rows
// land on one partition in order. It implements pipeline.Exporter.
type Writer struct {
	writer    messageWriter
	runID     string
	batchSize int
	logger    *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, runID string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newWriter(w, runID, cfg.BatchSize, logger)
}

func newWriter(w messageWriter, runID string, batchSize int, logger *slog.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Writer{writer: w, runID: runID, batchSize: batchSize, logger: logger}
}

// Name returns the sink label used in metrics.
func (w *Writer) Name() string { return "kafka" }

// Export serializes rows and writes them in batches of batchSize.
func (w *Writer) Export(ctx context.Context, rows []domain.Row) error {
	exportedAt := domain.Clock().Now().UTC()
	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		msgs := make([]kafkago.Message, 0, end-start)
		for i := start; i < end; i++ {
			msg, err := serializeToMessage(rows[i], w.runID, exportedAt)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("write rows %d-%d: %w", start, end-1, err)
		}
	}
	w.logger.Info("export published", "sink", w.Name(), "rows", len(rows))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// rowMessage is the JSON value of one message. Value is null when absent.
type rowMessage struct {
	CoordID int64    `json:"coord_id"`
	Lon     float64  `json:"lon"`
	Lat     float64  `json:"lat"`
	Date    string   `json:"date"`
	Value   *float64 `json:"value"`
}

// serializeToMessage marshals a Row into a Kafka message.
func serializeToMessage(row domain.Row, runID string, exportedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(rowMessage(row))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize row for point %d: %w", row.CoordID, err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(row.CoordID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "exported_at", Value: []byte(exportedAt.Format(time.RFC3339))},
		},
	}, nil
}
