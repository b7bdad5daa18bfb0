package changefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewag/orthanc-graph/internal/entity"
	"github.com/ewag/orthanc-graph/internal/orthanc"
	"github.com/ewag/orthanc-graph/internal/storage"
)

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) handle(_ context.Context, ev orthanc.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, ev.ID)
	if ev.ID == "bad" {
		return errors.New("handler rejected event")
	}
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestWatcherPollOnceSavesCursor(t *testing.T) {
	src := &logSource{}
	src.append("s1", orthanc.StableStudy)
	src.append("i1", orthanc.NewInstance)
	src.append("bad", orthanc.StableStudy)
	store := storage.NewMemoryStore()
	rec := &recorder{}
	w := NewWatcher(NewCursor(src), store, rec.handle, WatcherConfig{
		Name:  "test-poll-once",
		Types: []orthanc.ChangeType{orthanc.StableStudy},
	})
	ctx := context.Background()

	handled, err := w.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []string{"s1", "bad"}, rec.seen())

	since, ok, err := store.Load(ctx, "test-poll-once")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), since)

	assert.Equal(t, float64(1), testutil.ToFloat64(handlerErrorsTotal.WithLabelValues("test-poll-once")))
	assert.Equal(t, float64(2), testutil.ToFloat64(eventsTotal.WithLabelValues("test-poll-once", "StableStudy")))
	assert.Equal(t, float64(3), testutil.ToFloat64(cursorPosition.WithLabelValues("test-poll-once")))
}

func TestWatcherDoesNotSaveFailedPass(t *testing.T) {
	src := &scriptedSource{steps: []scriptStep{
		{err: &orthanc.TransportError{Method: "GET", Path: "/changes", StatusCode: 500}},
	}}
	store := storage.NewMemoryStore()
	w := NewWatcher(NewCursor(src), store, (&recorder{}).handle, WatcherConfig{Name: "test-failed-pass"})

	_, err := w.PollOnce(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, orthanc.ErrTransport))

	_, ok, err := store.Load(context.Background(), "test-failed-pass")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(pollsTotal.WithLabelValues("test-failed-pass", "error")))
}

func TestWatcherRestoresSavedCursor(t *testing.T) {
	src := &logSource{}
	src.append("old", orthanc.StablePatient)
	src.append("new", orthanc.StablePatient)
	store := storage.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "test-restore", 1))
	rec := &recorder{}
	w := NewWatcher(NewCursor(src), store, rec.handle, WatcherConfig{Name: "test-restore"})

	require.NoError(t, w.Restore(context.Background()))
	_, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, rec.seen())
}

func TestWatcherRunStopsOnCancel(t *testing.T) {
	src := &logSource{}
	src.append("p1", orthanc.StablePatient)
	rec := &recorder{}
	w := NewWatcher(NewCursor(src), storage.NewMemoryStore(), rec.handle, WatcherConfig{
		Name:     "test-run",
		Interval: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, time.Second, 5*time.Millisecond)
	src.append("p2", orthanc.StablePatient)
	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Equal(t, []string{"p1", "p2"}, rec.seen())
}

func TestChainJoinsErrors(t *testing.T) {
	first := errors.New("first")
	h := Chain(
		func(context.Context, orthanc.ChangeEvent) error { return first },
		LogHandler(nil),
		func(context.Context, orthanc.ChangeEvent) error { return nil },
	)
	err := h(context.Background(), orthanc.ChangeEvent{ID: "x"})
	assert.ErrorIs(t, err, first)
}

type postRecorder struct {
	entity.Transport
	paths []string
}

func (p *postRecorder) Post(_ context.Context, path string, _ any) (any, error) {
	p.paths = append(p.paths, path)
	return nil, nil
}

func TestRouteStableStudiesSendsOnlyStudies(t *testing.T) {
	tr := &postRecorder{}
	h := RouteStableStudies(entity.NewGraph(tr), "pacs")
	ctx := context.Background()

	require.NoError(t, h(ctx, orthanc.ChangeEvent{ID: "p1", ChangeType: orthanc.StablePatient}))
	require.NoError(t, h(ctx, orthanc.ChangeEvent{ID: "s1", ChangeType: orthanc.StableStudy}))
	assert.Equal(t, []string{"/modalities/pacs/store"}, tr.paths)
}
