// Package earthengine queries the Earth Engine REST API for IMERG rainfall
// samples and landslide point tables.
package earthengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	eeapi "google.golang.org/api/earthengine/v1"
	"google.golang.org/api/option"
)

// Options configures the Earth Engine session.
type Options struct {
	Project         string // Cloud project id, with or without the "projects/" prefix
	CredentialsFile string // service account JSON; empty uses Application Default Credentials
	Endpoint        string // API base URL override
	Timeout         time.Duration

	// WithoutAuthentication skips credential lookup. Used against local fakes.
	WithoutAuthentication bool
	HTTPClient            *http.Client
}

// Client is an authenticated Earth Engine session. It is created once and
// shared by every query.
type Client struct {
	svc     *eeapi.Service
	project string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates an Earth Engine client for the given project.
func NewClient(ctx context.Context, opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Project == "" {
		return nil, errors.New("earth engine project is required")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		clientOpts = append(clientOpts, option.WithEndpoint(endpoint))
	}
	if opts.WithoutAuthentication {
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	svc, err := eeapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create earth engine service: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		svc:     svc,
		project: projectName(opts.Project),
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Project returns the "projects/<id>" resource name used for requests.
func (c *Client) Project() string {
	return c.project
}

// Compute evaluates an expression graph and returns the JSON-encoded result.
func (c *Client) Compute(ctx context.Context, expr *eeapi.Expression) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.svc.Projects.Value.Compute(c.project, &eeapi.ComputeValueRequest{
		Expression: expr,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("earth engine compute: %w", err)
	}

	data, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("encode compute result: %w", err)
	}
	c.logger.Debug("earth engine compute done", "project", c.project, "bytes", len(data))
	return data, nil
}

func projectName(project string) string {
	if strings.HasPrefix(project, "projects/") {
		return project
	}
	return "projects/" + project
}
