package earthengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	eeapi "google.golang.org/api/earthengine/v1"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

const (
	timeStartProperty = "system:time_start"
	mappingArg        = "_MAPPING_VAR_0_0"
)

// Archive reads reduced IMERG images around a point. It implements
// pipeline.Archive.
type Archive struct {
	client     *Client
	collection string
	band       string
	scale      float64
	logger     *slog.Logger
}

// NewArchive creates an archive over an image collection and band.
func NewArchive(client *Client, collection, band string, scale float64, logger *slog.Logger) *Archive {
	return &Archive{
		client:     client,
		collection: collection,
		band:       band,
		scale:      scale,
		logger:     logger,
	}
}

// Samples returns one sample per image intersecting the point inside the
// query window. Images without coverage yield a sample with a nil value.
// Order follows the platform's collection order.
func (a *Archive) Samples(ctx context.Context, q domain.Query) ([]domain.Sample, error) {
	data, err := a.client.Compute(ctx, a.windowExpression(q))
	if err != nil {
		return nil, fmt.Errorf("point %d: %w", q.Point.ID, err)
	}

	var fc sampleCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("point %d: decode samples: %w", q.Point.ID, err)
	}

	samples := make([]domain.Sample, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Properties.TimeStart == nil {
			a.logger.Warn("image without time_start skipped", "point_id", q.Point.ID)
			continue
		}
		ts := time.UnixMilli(int64(*f.Properties.TimeStart)).UTC()
		if !q.Window.Contains(ts) {
			continue
		}
		samples = append(samples, domain.Sample{
			PointID:   q.Point.ID,
			Lon:       q.Point.Lon(),
			Lat:       q.Point.Lat(),
			Timestamp: ts,
			Value:     f.Properties.Value,
		})
	}
	return samples, nil
}

// windowExpression builds:
//
//	ImageCollection.load(collection)
//	  .filterBounds(point)
//	  .filterDate(window.Start, window.End)
//	  .map(image => Feature(null, {
//	      time_start: image.get("system:time_start"),
//	      value: image.clip(point).select([band])
//	                  .reduceRegion(mean, point, scale).get(band),
//	  }))
func (a *Archive) windowExpression(q domain.Query) *eeapi.Expression {
	g := newGraph()

	point := g.invoke("GeometryConstructors.Point", map[string]eeapi.ValueNode{
		"coordinates": constant([]float64{q.Point.Lon(), q.Point.Lat()}),
	})
	images := g.invoke("ImageCollection.load", map[string]eeapi.ValueNode{
		"id": constant(a.collection),
	})

	bounds := g.invoke("Filter.intersects", map[string]eeapi.ValueNode{
		"leftField":  constant(".all"),
		"rightValue": ref(point),
	})
	inBounds := g.invoke("Collection.filter", map[string]eeapi.ValueNode{
		"collection": ref(images),
		"filter":     ref(bounds),
	})

	dateRange := g.invoke("DateRange", map[string]eeapi.ValueNode{
		"start": constant(q.Window.Start.UnixMilli()),
		"end":   constant(q.Window.End.UnixMilli()),
	})
	dates := g.invoke("Filter.dateRangeContains", map[string]eeapi.ValueNode{
		"leftValue":  ref(dateRange),
		"rightField": constant(timeStartProperty),
	})
	inWindow := g.invoke("Collection.filter", map[string]eeapi.ValueNode{
		"collection": ref(inBounds),
		"filter":     ref(dates),
	})

	clipped := g.invoke("Image.clip", map[string]eeapi.ValueNode{
		"input":    argRef(mappingArg),
		"geometry": ref(point),
	})
	selected := g.invoke("Image.select", map[string]eeapi.ValueNode{
		"input":         ref(clipped),
		"bandSelectors": constant([]string{a.band}),
	})
	mean := g.invoke("Reducer.mean", map[string]eeapi.ValueNode{})
	reduced := g.invoke("Image.reduceRegion", map[string]eeapi.ValueNode{
		"image":    ref(selected),
		"reducer":  ref(mean),
		"geometry": ref(point),
		"scale":    constant(a.scale),
	})
	value := g.invoke("Dictionary.get", map[string]eeapi.ValueNode{
		"dictionary": ref(reduced),
		"key":        constant(a.band),
	})
	timeStart := g.invoke("Element.get", map[string]eeapi.ValueNode{
		"object":   argRef(mappingArg),
		"property": constant(timeStartProperty),
	})
	feature := g.invoke("Feature", map[string]eeapi.ValueNode{
		"geometry": null(),
		"metadata": dict(map[string]eeapi.ValueNode{
			"time_start": ref(timeStart),
			"value":      ref(value),
		}),
	})

	result := g.invoke("Collection.map", map[string]eeapi.ValueNode{
		"collection":    ref(inWindow),
		"baseAlgorithm": function(mappingArg, feature),
	})
	return g.expression(result)
}

// sampleCollection is the computed FeatureCollection of per-image features.
type sampleCollection struct {
	Features []struct {
		Properties struct {
			TimeStart *float64 `json:"time_start"`
			Value     *float64 `json:"value"`
		} `json:"properties"`
	} `json:"features"`
}
