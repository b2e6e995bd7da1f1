// Package drive uploads the exported CSV to a Google Drive folder.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	csvMimeType    = "text/csv"
)

// Options configures the Drive client.
type Options struct {
	CredentialsFile string
	Endpoint        string

	WithoutAuthentication bool
	HTTPClient            *http.Client
}

// Writer uploads <name>.csv into a named folder, creating the folder when it
// does not exist and replacing the content of an existing file with the same
// name. It implements pipeline.Exporter.
type Writer struct {
	svc    *drivev3.Service
	folder string
	name   string
	logger *slog.Logger
}

// NewWriter creates a Drive sink.
func NewWriter(ctx context.Context, opts Options, folder, name string, logger *slog.Logger) (*Writer, error) {
	if folder == "" {
		return nil, errors.New("drive folder is required")
	}

	clientOpts := []option.ClientOption{option.WithScopes(drivev3.DriveFileScope)}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	if opts.WithoutAuthentication {
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	svc, err := drivev3.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Writer{svc: svc, folder: folder, name: name, logger: logger}, nil
}

// Name returns the sink label used in metrics.
func (w *Writer) Name() string { return "drive" }

// Export encodes rows and uploads them.
func (w *Writer) Export(ctx context.Context, rows []domain.Row) error {
	data, err := domain.EncodeCSV(rows)
	if err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}

	folderID, err := w.ensureFolder(ctx)
	if err != nil {
		return err
	}

	fileName := w.name + ".csv"
	existing, err := w.find(ctx, fileName, "", folderID)
	if err != nil {
		return err
	}

	media := googleapi.ContentType(csvMimeType)
	var f *drivev3.File
	if existing != "" {
		f, err = w.svc.Files.Update(existing, &drivev3.File{}).
			Media(bytes.NewReader(data), media).
			Fields("id").
			Context(ctx).Do()
	} else {
		f, err = w.svc.Files.Create(&drivev3.File{
			Name:     fileName,
			Parents:  []string{folderID},
			MimeType: csvMimeType,
		}).
			Media(bytes.NewReader(data), media).
			Fields("id").
			Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", fileName, err)
	}

	w.logger.Info("export uploaded",
		"sink", w.Name(),
		"folder", w.folder,
		"file_id", f.Id,
		"replaced", existing != "",
		"rows", len(rows),
	)
	return nil
}

func (w *Writer) ensureFolder(ctx context.Context) (string, error) {
	id, err := w.find(ctx, w.folder, folderMimeType, "")
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	f, err := w.svc.Files.Create(&drivev3.File{
		Name:     w.folder,
		MimeType: folderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create drive folder %s: %w", w.folder, err)
	}
	w.logger.Info("drive folder created", "folder", w.folder, "folder_id", f.Id)
	return f.Id, nil
}

// find returns the id of the first non-trashed file matching name, and
// optionally mime type and parent. Empty when nothing matches.
func (w *Writer) find(ctx context.Context, name, mimeType, parent string) (string, error) {
	list, err := w.svc.Files.List().
		Q(searchQuery(name, mimeType, parent)).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("search drive for %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func searchQuery(name, mimeType, parent string) string {
	terms := []string{"name = '" + escape(name) + "'"}
	if mimeType != "" {
		terms = append(terms, "mimeType = '"+mimeType+"'")
	}
	if parent != "" {
		terms = append(terms, "'"+escape(parent)+"' in parents")
	}
	terms = append(terms, "trashed = false")
	return strings.Join(terms, " and ")
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
