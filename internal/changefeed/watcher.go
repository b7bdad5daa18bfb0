package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/ewag/orthanc-graph/internal/entity"
	"github.com/ewag/orthanc-graph/internal/orthanc"
)

// PositionStore persists cursor positions by watcher name.
type PositionStore interface {
	Load(ctx context.Context, name string) (int64, bool, error)
	Save(ctx context.Context, name string, since int64) error
}

// Handler receives one matching change event. A returned error is logged and
// counted; it does not stop the watcher or hold back the cursor.
type Handler func(ctx context.Context, ev orthanc.ChangeEvent) error

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Name keys the persisted cursor and labels the metrics.
	Name string
	// Types selects the change types passed to the handler. Empty means all.
	Types []orthanc.ChangeType
	// Interval is the minimum time between two passes.
	Interval time.Duration
	Logger   *slog.Logger
}

// Watcher repeatedly runs a cursor pass, hands matching events to a handler
// and saves the cursor after each successful pass.
type Watcher struct {
	cursor  *Cursor
	store   PositionStore
	handler Handler
	name    string
	match   func(orthanc.ChangeEvent) bool
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWatcher(cursor *Cursor, store PositionStore, handler Handler, cfg WatcherConfig) *Watcher {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var match func(orthanc.ChangeEvent) bool
	if len(cfg.Types) > 0 {
		match = OfType(cfg.Types...)
	}
	return &Watcher{
		cursor:  cursor,
		store:   store,
		handler: handler,
		name:    cfg.Name,
		match:   match,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		logger:  cfg.Logger.With("watcher", cfg.Name),
	}
}

// Cursor exposes the watcher's cursor position for diagnostics.
func (w *Watcher) Cursor() *Cursor { return w.cursor }

// Restore moves the cursor to the persisted position, if one exists.
func (w *Watcher) Restore(ctx context.Context) error {
	since, ok, err := w.store.Load(ctx, w.name)
	if err != nil {
		return fmt.Errorf("failed to restore cursor %q: %w", w.name, err)
	}
	if ok {
		w.cursor.Seek(since)
		w.logger.InfoContext(ctx, "Restored changefeed cursor", "since", since)
	}
	cursorPosition.WithLabelValues(w.name).Set(float64(w.cursor.Since()))
	return nil
}

// Run restores the cursor and polls until ctx is cancelled. Failed passes are
// logged and retried at the next interval.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Restore(ctx); err != nil {
		return err
	}
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if _, err := w.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.ErrorContext(ctx, "Changefeed pass failed", "since", w.cursor.Since(), "error", err)
		}
	}
}

// PollOnce runs a single pass and returns the number of events handled.
// The cursor is saved only when the pass completed without error.
func (w *Watcher) PollOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(pollDuration.WithLabelValues(w.name))
	defer timer.ObserveDuration()

	handled := 0
	for ev, err := range w.cursor.Events(ctx, w.match) {
		if err != nil {
			pollsTotal.WithLabelValues(w.name, "error").Inc()
			return handled, err
		}
		eventsTotal.WithLabelValues(w.name, string(ev.ChangeType)).Inc()
		if herr := w.handler(ctx, ev); herr != nil {
			handlerErrorsTotal.WithLabelValues(w.name).Inc()
			w.logger.ErrorContext(ctx, "Change handler failed", "id", ev.ID, "changeType", ev.ChangeType, "seq", ev.Seq, "error", herr)
		}
		handled++
	}

	since := w.cursor.Since()
	if err := w.store.Save(ctx, w.name, since); err != nil {
		pollsTotal.WithLabelValues(w.name, "error").Inc()
		return handled, fmt.Errorf("failed to save cursor %q: %w", w.name, err)
	}
	cursorPosition.WithLabelValues(w.name).Set(float64(since))
	pollsTotal.WithLabelValues(w.name, "ok").Inc()
	if handled > 0 {
		w.logger.InfoContext(ctx, "Changefeed pass complete", "handled", handled, "since", since)
	}
	return handled, nil
}

// Chain runs handlers in order and joins their errors.
func Chain(handlers ...Handler) Handler {
	return func(ctx context.Context, ev orthanc.ChangeEvent) error {
		var errs error
		for _, h := range handlers {
			if err := h(ctx, ev); err != nil {
				errs = errors.Join(errs, err)
			}
		}
		return errs
	}
}

// LogHandler logs every event it receives.
func LogHandler(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, ev orthanc.ChangeEvent) error {
		logger.InfoContext(ctx, "Entity changed", "id", ev.ID, "changeType", ev.ChangeType, "resourceType", ev.ResourceType, "seq", ev.Seq)
		return nil
	}
}

// RouteStableStudies forwards every stabilized study to modality.
func RouteStableStudies(g *entity.Graph, modality string) Handler {
	return func(ctx context.Context, ev orthanc.ChangeEvent) error {
		if ev.ChangeType != orthanc.StableStudy {
			return nil
		}
		if _, err := g.Study(ev.ID).SendTo(ctx, modality); err != nil {
			return err
		}
		slog.InfoContext(ctx, "Routed stable study", "id", ev.ID, "modality", modality)
		return nil
	}
}
