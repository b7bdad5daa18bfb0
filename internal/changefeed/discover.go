package changefeed

import (
	"context"

	"github.com/ewag/orthanc-graph/internal/entity"
	"github.com/ewag/orthanc-graph/internal/orthanc"
)

// NewPatients runs one pass of c and wraps every stabilized patient in an
// unfetched node.
func NewPatients(ctx context.Context, c *Cursor, g *entity.Graph) ([]*entity.Patient, error) {
	return discover(ctx, c, orthanc.StablePatient, g.Patient)
}

// NewStudies runs one pass of c and wraps every stabilized study.
func NewStudies(ctx context.Context, c *Cursor, g *entity.Graph) ([]*entity.Study, error) {
	return discover(ctx, c, orthanc.StableStudy, g.Study)
}

// NewSeries runs one pass of c and wraps every stabilized series.
func NewSeries(ctx context.Context, c *Cursor, g *entity.Graph) ([]*entity.Series, error) {
	return discover(ctx, c, orthanc.StableSeries, g.Series)
}

func discover[T any](ctx context.Context, c *Cursor, changeType orthanc.ChangeType, build func(string) T) ([]T, error) {
	var out []T
	for id, err := range c.PollNew(ctx, changeType) {
		if err != nil {
			return out, err
		}
		out = append(out, build(id))
	}
	return out, nil
}
