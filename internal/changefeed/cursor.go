// Package changefeed reads the archive's paginated change log and reports
// entities that reached a given lifecycle state.
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ewag/orthanc-graph/internal/orthanc"
)

var tracer = otel.Tracer("github.com/ewag/orthanc-graph/internal/changefeed")

// ErrNoProgress is returned when the archive serves a page that is not done
// but does not move the cursor forward, which would otherwise poll forever.
var ErrNoProgress = errors.New("change log page did not advance the cursor")

// PageSource serves pages of the change log.
type PageSource interface {
	Changes(ctx context.Context, since int64, limit int) (*orthanc.ChangePage, error)
}

// Cursor walks the change log from a sequence number. One pass ends at the
// first page the archive marks done; the next pass resumes where it stopped
// and sees only events appended since.
type Cursor struct {
	source   PageSource
	limit    int
	failOpen bool
	maxPages int
	logger   *slog.Logger

	mu    sync.Mutex
	since int64
}

type Option func(*Cursor)

// WithSince sets the starting sequence number. Zero reads from the beginning.
func WithSince(since int64) Option {
	return func(c *Cursor) { c.since = since }
}

// WithPageLimit sets how many events are requested per page.
func WithPageLimit(limit int) Option {
	return func(c *Cursor) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithFailOpen makes a failed page request end the pass quietly, as if no
// data were available this round. By default the failure is yielded as an
// error. In both cases the cursor does not move.
func WithFailOpen(failOpen bool) Option {
	return func(c *Cursor) { c.failOpen = failOpen }
}

// WithMaxPages bounds the number of pages fetched by a single pass.
func WithMaxPages(n int) Option {
	return func(c *Cursor) { c.maxPages = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cursor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCursor(source PageSource, opts ...Option) *Cursor {
	c := &Cursor{
		source: source,
		limit:  orthanc.DefaultChangesLimit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Since is the sequence number the next page request starts from.
func (c *Cursor) Since() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.since
}

// Seek moves the cursor, e.g. back to zero or to a saved position.
func (c *Cursor) Seek(since int64) {
	c.mu.Lock()
	c.since = since
	c.mu.Unlock()
}

func (c *Cursor) advance(to int64) {
	c.mu.Lock()
	if to > c.since {
		c.since = to
	}
	c.mu.Unlock()
}

// PollNew yields the ids of events of the given type, page by page, without
// buffering the whole result.
func (c *Cursor) PollNew(ctx context.Context, changeType orthanc.ChangeType) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for ev, err := range c.Events(ctx, OfType(changeType)) {
			if !yield(ev.ID, err) || err != nil {
				return
			}
		}
	}
}

// Events yields every event accepted by match (all events when match is nil)
// in log order. After a page is consumed the cursor moves to the page's Last
// value; the pass ends on the first page marked done. An error is yielded at
// most once and ends the pass.
//
// When the consumer stops early, the cursor is left just after the last
// event it received.
func (c *Cursor) Events(ctx context.Context, match func(orthanc.ChangeEvent) bool) iter.Seq2[orthanc.ChangeEvent, error] {
	return func(yield func(orthanc.ChangeEvent, error) bool) {
		for pages := 0; c.maxPages <= 0 || pages < c.maxPages; pages++ {
			if err := ctx.Err(); err != nil {
				yield(orthanc.ChangeEvent{}, err)
				return
			}

			since := c.Since()
			page, err := c.fetch(ctx, since)
			if err != nil {
				if c.failOpen {
					c.logger.WarnContext(ctx, "Change log unavailable, treating as no data", "since", since, "error", err)
					return
				}
				yield(orthanc.ChangeEvent{}, fmt.Errorf("failed to read changes since %d: %w", since, err))
				return
			}

			for _, ev := range page.Changes {
				if match != nil && !match(ev) {
					continue
				}
				if !yield(ev, nil) {
					c.advance(ev.Seq)
					return
				}
			}

			if !page.Done && page.Last <= since {
				yield(orthanc.ChangeEvent{}, fmt.Errorf("page since %d ended at %d: %w", since, page.Last, ErrNoProgress))
				return
			}
			c.advance(page.Last)
			if page.Done {
				return
			}
		}
		c.logger.DebugContext(ctx, "Change log pass stopped at page bound", "maxPages", c.maxPages, "since", c.Since())
	}
}

func (c *Cursor) fetch(ctx context.Context, since int64) (*orthanc.ChangePage, error) {
	ctx, span := tracer.Start(ctx, "changefeed.Cursor.fetch", trace.WithAttributes(
		attribute.Int64("changefeed.since", since),
		attribute.Int("changefeed.limit", c.limit),
	))
	defer span.End()

	page, err := c.source.Changes(ctx, since, c.limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("changefeed.count", len(page.Changes)),
		attribute.Bool("changefeed.done", page.Done),
		attribute.Int64("changefeed.last", page.Last),
	)
	return page, nil
}

// OfType matches events of any of the given types.
func OfType(types ...orthanc.ChangeType) func(orthanc.ChangeEvent) bool {
	return func(ev orthanc.ChangeEvent) bool {
		for _, t := range types {
			if ev.ChangeType == t {
				return true
			}
		}
		return false
	}
}

// Collect drains an id sequence, stopping at the first error.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var ids []string
	for id, err := range seq {
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
