package earthengine

import (
	"context"
	"fmt"

	eeapi "google.golang.org/api/earthengine/v1"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/adapter/pointfile"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

// TableSource loads landslide points from an Earth Engine table asset.
// It implements pipeline.PointSource.
type TableSource struct {
	client  *Client
	assetID string
}

// NewTableSource creates a point source for a table asset id such as
// "users/<user>/datasets/table/<name>".
func NewTableSource(client *Client, assetID string) *TableSource {
	return &TableSource{client: client, assetID: assetID}
}

// LoadPoints fetches the table as GeoJSON and decodes each feature.
func (s *TableSource) LoadPoints(ctx context.Context) ([]domain.Point, error) {
	data, err := s.client.Compute(ctx, s.tableExpression())
	if err != nil {
		return nil, fmt.Errorf("load table %s: %w", s.assetID, err)
	}
	points, err := pointfile.DecodeFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", s.assetID, err)
	}
	return points, nil
}

func (s *TableSource) tableExpression() *eeapi.Expression {
	g := newGraph()
	table := g.invoke("Collection.loadTable", map[string]eeapi.ValueNode{
		"tableId": constant(s.assetID),
	})
	return g.expression(table)
}
