// Package objectstore uploads the exported CSV to an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

const csvContentType = "text/csv"

// Options configures the S3 connection.
type Options struct {
	Endpoint  string // host:port, scheme optional
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	Region    string
}

// Writer puts <name>.csv into a bucket, creating the bucket on first use.
// It implements pipeline.Exporter.
type Writer struct {
	client *minio.Client
	bucket string
	region string
	name   string
	runID  string
	logger *slog.Logger
}

// NewWriter creates an object store sink.
func NewWriter(opts Options, name, runID string, logger *slog.Logger) (*Writer, error) {
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	endpoint := strings.TrimPrefix(opts.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	return &Writer{
		client: client,
		bucket: opts.Bucket,
		region: opts.Region,
		name:   name,
		runID:  runID,
		logger: logger,
	}, nil
}

// Name returns the sink label used in metrics.
func (w *Writer) Name() string { return "s3" }

// ObjectName is the key the export is stored under.
func (w *Writer) ObjectName() string {
	return w.name + ".csv"
}

// Export encodes rows and puts them as a single object.
func (w *Writer) Export(ctx context.Context, rows []domain.Row) error {
	data, err := domain.EncodeCSV(rows)
	if err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}

	if err := w.ensureBucket(ctx); err != nil {
		return err
	}

	info, err := w.client.PutObject(ctx, w.bucket, w.ObjectName(), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  csvContentType,
			UserMetadata: map[string]string{"run-id": w.runID},
		})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", w.bucket, w.ObjectName(), err)
	}

	w.logger.Info("export uploaded",
		"sink", w.Name(),
		"bucket", w.bucket,
		"object", w.ObjectName(),
		"size", info.Size,
		"rows", len(rows),
	)
	return nil
}

func (w *Writer) ensureBucket(ctx context.Context) error {
	exists, err := w.client.BucketExists(ctx, w.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", w.bucket, err)
	}
	if exists {
		return nil
	}
	if err := w.client.MakeBucket(ctx, w.bucket, minio.MakeBucketOptions{Region: w.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", w.bucket, err)
	}
	w.logger.Info("bucket created", "bucket", w.bucket)
	return nil
}
