package changefeed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewag/orthanc-graph/internal/entity"
	"github.com/ewag/orthanc-graph/internal/orthanc"
)

// logSource behaves like the archive: an append-only log paged by sequence.
type logSource struct {
	mu       sync.Mutex
	events   []orthanc.ChangeEvent
	requests []int64
}

func (s *logSource) append(id string, ct orthanc.ChangeType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, orthanc.ChangeEvent{ID: id, ChangeType: ct, Seq: int64(len(s.events) + 1)})
}

func (s *logSource) Changes(_ context.Context, since int64, limit int) (*orthanc.ChangePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, since)
	page := &orthanc.ChangePage{Last: since}
	for _, ev := range s.events {
		if ev.Seq <= since {
			continue
		}
		if len(page.Changes) == limit {
			return page, nil
		}
		page.Changes = append(page.Changes, ev)
		page.Last = ev.Seq
	}
	page.Done = true
	if n := int64(len(s.events)); page.Last < n {
		page.Last = n
	}
	return page, nil
}

// scriptedSource replays fixed pages and errors in order.
type scriptedSource struct {
	steps    []scriptStep
	requests []int64
}

type scriptStep struct {
	page *orthanc.ChangePage
	err  error
}

func (s *scriptedSource) Changes(_ context.Context, since int64, _ int) (*orthanc.ChangePage, error) {
	s.requests = append(s.requests, since)
	if len(s.requests) > len(s.steps) {
		return &orthanc.ChangePage{Done: true, Last: since}, nil
	}
	step := s.steps[len(s.requests)-1]
	return step.page, step.err
}

func TestPollNewWorkedExample(t *testing.T) {
	src := &scriptedSource{steps: []scriptStep{{page: &orthanc.ChangePage{
		Changes: []orthanc.ChangeEvent{
			{ID: "a", ChangeType: orthanc.StablePatient},
			{ID: "b", ChangeType: orthanc.StableStudy},
		},
		Done: true,
		Last: 2,
	}}}}
	c := NewCursor(src)

	ids, err := Collect(c.PollNew(context.Background(), orthanc.StablePatient))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
	assert.Equal(t, []int64{0}, src.requests)
	assert.Equal(t, int64(2), c.Since())
}

func TestPollNewPreservesPageOrderAcrossPages(t *testing.T) {
	src := &logSource{}
	for i, id := range []string{"p1", "s1", "p2", "p3", "x", "p4", "p5"} {
		ct := orthanc.StablePatient
		if i == 1 || i == 4 {
			ct = orthanc.NewSeries
		}
		src.append(id, ct)
	}
	c := NewCursor(src, WithPageLimit(2))

	ids, err := Collect(c.PollNew(context.Background(), orthanc.StablePatient))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5"}, ids)
	assert.Equal(t, []int64{0, 2, 4, 6}, src.requests)
	assert.Equal(t, int64(7), c.Since())
}

func TestPollNewResumesWithoutDuplicates(t *testing.T) {
	src := &logSource{}
	src.append("a", orthanc.StableStudy)
	src.append("b", orthanc.StableStudy)
	c := NewCursor(src, WithPageLimit(10))
	ctx := context.Background()

	first, err := Collect(c.PollNew(ctx, orthanc.StableStudy))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, first)

	again, err := Collect(c.PollNew(ctx, orthanc.StableStudy))
	require.NoError(t, err)
	assert.Empty(t, again)

	src.append("c", orthanc.StableStudy)
	src.append("d", orthanc.NewInstance)
	src.append("e", orthanc.StableStudy)

	next, err := Collect(c.PollNew(ctx, orthanc.StableStudy))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "e"}, next)

	// A second cursor started from a saved position sees the same suffix.
	saved := NewCursor(src, WithSince(2))
	fromSaved, err := Collect(saved.PollNew(ctx, orthanc.StableStudy))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "e"}, fromSaved)

	// Seeking to zero restarts from the beginning of the log.
	c.Seek(0)
	all, err := Collect(c.PollNew(ctx, orthanc.StableStudy))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "e"}, all)
}

func TestEmptyPageNotDoneFetchesAgain(t *testing.T) {
	src := &scriptedSource{steps: []scriptStep{
		{page: &orthanc.ChangePage{Done: false, Last: 5}},
		{page: &orthanc.ChangePage{Done: false, Last: 9}},
		{page: &orthanc.ChangePage{
			Changes: []orthanc.ChangeEvent{{ID: "z", ChangeType: orthanc.StableSeries, Seq: 10}},
			Done:    true,
			Last:    10,
		}},
	}}
	c := NewCursor(src)

	ids, err := Collect(c.PollNew(context.Background(), orthanc.StableSeries))
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, ids)
	assert.Equal(t, []int64{0, 5, 9}, src.requests)
}

func TestSinceBeyondLogEndsImmediately(t *testing.T) {
	src := &logSource{}
	src.append("a", orthanc.StablePatient)
	c := NewCursor(src, WithSince(100))

	ids, err := Collect(c.PollNew(context.Background(), orthanc.StablePatient))
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, []int64{100}, src.requests)
	assert.Equal(t, int64(100), c.Since())
}

func TestTransportFailureIsDistinctError(t *testing.T) {
	failure := &orthanc.TransportError{Method: "GET", Path: "/changes", StatusCode: 500}
	src := &scriptedSource{steps: []scriptStep{
		{page: &orthanc.ChangePage{
			Changes: []orthanc.ChangeEvent{{ID: "a", ChangeType: orthanc.StablePatient, Seq: 1}},
			Last:    1,
		}},
		{err: failure},
	}}
	c := NewCursor(src)

	ids, err := Collect(c.PollNew(context.Background(), orthanc.StablePatient))
	require.Error(t, err)
	assert.True(t, errors.Is(err, orthanc.ErrTransport))
	assert.Equal(t, []string{"a"}, ids)
	assert.Equal(t, int64(1), c.Since())
}

func TestFailOpenEndsPassQuietly(t *testing.T) {
	src := &scriptedSource{steps: []scriptStep{
		{err: &orthanc.TransportError{Method: "GET", Path: "/changes", StatusCode: 503}},
	}}
	c := NewCursor(src, WithFailOpen(true), WithSince(3))

	ids, err := Collect(c.PollNew(context.Background(), orthanc.StablePatient))
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, int64(3), c.Since())
}

func TestStalledPageIsReported(t *testing.T) {
	src := &scriptedSource{steps: []scriptStep{
		{page: &orthanc.ChangePage{Done: false, Last: 0}},
	}}
	c := NewCursor(src)

	_, err := Collect(c.PollNew(context.Background(), orthanc.StablePatient))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoProgress))
}

func TestMaxPagesBoundsPass(t *testing.T) {
	src := &logSource{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		src.append(id, orthanc.StablePatient)
	}
	c := NewCursor(src, WithPageLimit(1), WithMaxPages(2))

	ids, err := Collect(c.PollNew(context.Background(), orthanc.StablePatient))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	rest, err := Collect(c.PollNew(context.Background(), orthanc.StablePatient))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, rest)
}

func TestEarlyBreakLeavesCursorAfterLastDelivered(t *testing.T) {
	src := &logSource{}
	for _, id := range []string{"a", "b", "c"} {
		src.append(id, orthanc.StablePatient)
	}
	c := NewCursor(src)
	ctx := context.Background()

	for id, err := range c.PollNew(ctx, orthanc.StablePatient) {
		require.NoError(t, err)
		assert.Equal(t, "a", id)
		break
	}
	assert.Equal(t, int64(1), c.Since())

	rest, err := Collect(c.PollNew(ctx, orthanc.StablePatient))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, rest)
}

func TestCancelledContextStopsPass(t *testing.T) {
	src := &logSource{}
	src.append("a", orthanc.StablePatient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(NewCursor(src).PollNew(ctx, orthanc.StablePatient))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, src.requests)
}

func TestDiscoveryWrapsIdsInUnfetchedNodes(t *testing.T) {
	src := &logSource{}
	src.append("p1", orthanc.StablePatient)
	src.append("s1", orthanc.StableStudy)
	src.append("x1", orthanc.StableSeries)
	g := entity.NewGraph(nil)
	ctx := context.Background()

	patients, err := NewPatients(ctx, NewCursor(src), g)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "p1", patients[0].ID())
	assert.False(t, patients[0].Loaded())

	studies, err := NewStudies(ctx, NewCursor(src), g)
	require.NoError(t, err)
	require.Len(t, studies, 1)
	assert.Equal(t, "s1", studies[0].ID())

	series, err := NewSeries(ctx, NewCursor(src), g)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, entity.KindSeries, series[0].Kind())
}
