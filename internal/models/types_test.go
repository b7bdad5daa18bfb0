package models

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewag/orthanc-graph/internal/entity"
	"github.com/ewag/orthanc-graph/internal/orthanc"
)

type docs map[string]string

func (d docs) Get(_ context.Context, path string, _ map[string]string) (map[string]any, error) {
	raw, ok := d[path]
	if !ok {
		return nil, &orthanc.TransportError{Method: "GET", Path: path, StatusCode: 404}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d docs) Post(context.Context, string, any) (any, error) { return nil, nil }
func (d docs) Delete(context.Context, string) error           { return nil }
func (d docs) URL(path string) string                         { return "http://archive" + path }

func TestSeriesView(t *testing.T) {
	g := entity.NewGraph(docs{
		"/series/x1": `{"MainDicomTags":{"Modality":"CT","SeriesDate":"20240131"},"ParentStudy":"s1","Status":"Complete","IsStable":false,"Instances":["i1","i2"]}`,
	})

	v, err := NewSeriesView(context.Background(), g.Series("x1"))
	require.NoError(t, err)
	assert.Equal(t, "CT", v.Modality)
	assert.Equal(t, "2024-01-31", v.Date.String())
	assert.Equal(t, "Complete", v.Status)
	require.NotNil(t, v.IsStable)
	assert.False(t, *v.IsStable)
	assert.Equal(t, "s1", v.Study)
	assert.Equal(t, []string{"i1", "i2"}, v.Instances)
	assert.Empty(t, v.Manufacturer)
}

func TestViewKeepsReadableFieldsWhenOneFails(t *testing.T) {
	g := entity.NewGraph(docs{
		"/studies/s1": `{"MainDicomTags":{"StudyDescription":"Chest","StudyDate":"not-a-date"},"Series":[]}`,
	})

	v, err := NewStudyView(context.Background(), g.Study("s1"))
	require.NotNil(t, v)
	require.Error(t, err)

	var perr *entity.ParseError
	assert.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, entity.ErrMalformedSnapshot)
	assert.Equal(t, "Chest", v.Description)
	assert.Nil(t, v.Date)
	assert.Empty(t, v.Patient)
	assert.Empty(t, v.Series)
}

func TestViewOfMissingEntity(t *testing.T) {
	g := entity.NewGraph(docs{})

	v, err := NewInstanceView(context.Background(), g.Instance("gone"))
	assert.Nil(t, v)
	assert.ErrorIs(t, err, orthanc.ErrNotFound)
}

func TestInstanceViewJSONOmitsAbsentTags(t *testing.T) {
	g := entity.NewGraph(docs{
		"/instances/i1": `{"MainDicomTags":{},"ParentSeries":"x1","IndexInSeries":0}`,
	})

	v, err := NewInstanceView(context.Background(), g.Instance("i1"))
	require.NoError(t, err)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"i1","indexInSeries":0,"series":"x1","previewUrl":"http://archive/instances/i1/preview"}`, string(out))
}
