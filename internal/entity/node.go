// Package entity models the archive hierarchy (patient, study, series,
// instance) as lazily fetched nodes. A node fetches its snapshot on first use
// and serves every later accessor from that snapshot until it is refreshed.
package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ewag/orthanc-graph/internal/orthanc"
)

const mainTagsField = "MainDicomTags"

var tracer = otel.Tracer("github.com/ewag/orthanc-graph/internal/entity")

// Transport is the subset of the archive client the graph needs.
type Transport interface {
	Get(ctx context.Context, path string, query map[string]string) (map[string]any, error)
	Post(ctx context.Context, path string, body any) (any, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

// snapshot is one complete decoded response. It is never modified after it
// has been installed on a node.
type snapshot struct {
	fields map[string]any
	epoch  uint64
}

// Node is the lazily loaded cache around one remote resource.
//
// Readers always see either no snapshot or a complete one; Load swaps the
// snapshot pointer only after a fetch succeeded.
type Node struct {
	ref       EntityRef
	transport Transport

	mu   sync.Mutex // serializes fetches
	snap atomic.Pointer[snapshot]
}

func newNode(t Transport, kind Kind, id string) *Node {
	return &Node{ref: EntityRef{Kind: kind, ID: id}, transport: t}
}

func (n *Node) Ref() EntityRef { return n.ref }
func (n *Node) ID() string     { return n.ref.ID }
func (n *Node) Kind() Kind     { return n.ref.Kind }
func (n *Node) Path() string   { return n.ref.Path() }

// Loaded reports whether a snapshot has been installed.
func (n *Node) Loaded() bool { return n.snap.Load() != nil }

// Epoch counts successful fetches; zero means never fetched.
func (n *Node) Epoch() uint64 {
	if s := n.snap.Load(); s != nil {
		return s.epoch
	}
	return 0
}

// Load fetches the snapshot if none is cached or force is set. Without force,
// repeated and concurrent calls after a successful load issue no request.
// On failure the previous snapshot, if any, stays in place.
func (n *Node) Load(ctx context.Context, force bool) error {
	if !force && n.snap.Load() != nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	prev := n.snap.Load()
	if !force && prev != nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "entity.Node.Load", trace.WithAttributes(
		attribute.String("entity.kind", n.ref.Kind.String()),
		attribute.String("entity.id", n.ref.ID),
		attribute.Bool("entity.force", force),
	))
	defer span.End()

	fields, err := n.transport.Get(ctx, n.Path(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return fmt.Errorf("failed to load %s: %w", n.ref, err)
	}

	next := &snapshot{fields: fields, epoch: 1}
	if prev != nil {
		next.epoch = prev.epoch + 1
	}
	n.snap.Store(next)
	slog.DebugContext(ctx, "Loaded entity snapshot", "kind", n.ref.Kind.String(), "id", n.ref.ID, "epoch", next.epoch)
	return nil
}

// Exists reports whether the archive still knows the resource. It refreshes
// the snapshot when it succeeds.
func (n *Node) Exists(ctx context.Context) (bool, error) {
	err := n.Load(ctx, true)
	if errors.Is(err, orthanc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the resource from the archive. The cached snapshot is kept.
func (n *Node) Delete(ctx context.Context) error {
	if err := n.transport.Delete(ctx, n.Path()); err != nil {
		return fmt.Errorf("failed to delete %s: %w", n.ref, err)
	}
	return nil
}

func (n *Node) current(ctx context.Context) (*snapshot, error) {
	if err := n.Load(ctx, false); err != nil {
		return nil, err
	}
	return n.snap.Load(), nil
}

func (n *Node) malformed(field, problem string) error {
	return fmt.Errorf("%s field %q %s: %w", n.ref, field, problem, ErrMalformedSnapshot)
}

// Field returns a top-level snapshot value. A missing or null key is reported
// as absent, not as an error.
func (n *Node) Field(ctx context.Context, key string) (any, bool, error) {
	s, err := n.current(ctx)
	if err != nil {
		return nil, false, err
	}
	v, ok := s.fields[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

func (n *Node) StringField(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := n.Field(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	s, isString := v.(string)
	if !isString {
		return "", false, n.malformed(key, "is not a string")
	}
	return s, true, nil
}

func (n *Node) BoolField(ctx context.Context, key string) (bool, bool, error) {
	v, ok, err := n.Field(ctx, key)
	if err != nil || !ok {
		return false, false, err
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, false, n.malformed(key, "is not a boolean")
	}
	return b, true, nil
}

func (n *Node) IntField(ctx context.Context, key string) (int64, bool, error) {
	v, ok, err := n.Field(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	i, isInt := asInt(v)
	if !isInt {
		return 0, false, n.malformed(key, "is not an integer")
	}
	return i, true, nil
}

// StringsField reads a list of identifiers.
func (n *Node) StringsField(ctx context.Context, key string) ([]string, bool, error) {
	s, err := n.current(ctx)
	if err != nil {
		return nil, false, err
	}
	return n.stringsFrom(s, key)
}

func (n *Node) stringsFrom(s *snapshot, key string) ([]string, bool, error) {
	v, ok := s.fields[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	raw, isList := v.([]any)
	if !isList {
		return nil, false, n.malformed(key, "is not a list")
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		id, isString := item.(string)
		if !isString {
			return nil, false, n.malformed(key, "contains a non-string identifier")
		}
		ids = append(ids, id)
	}
	return ids, true, nil
}

// Tag reads key from the main tag dictionary. A snapshot without the
// dictionary is malformed; a dictionary without the key is an absence.
func (n *Node) Tag(ctx context.Context, key string) (string, bool, error) {
	s, err := n.current(ctx)
	if err != nil {
		return "", false, err
	}
	rawTags, ok := s.fields[mainTagsField]
	if !ok || rawTags == nil {
		return "", false, n.malformed(mainTagsField, "is missing")
	}
	tags, isMap := rawTags.(map[string]any)
	if !isMap {
		return "", false, n.malformed(mainTagsField, "is not an object")
	}
	v, ok := tags[key]
	if !ok || v == nil {
		return "", false, nil
	}
	str, isString := v.(string)
	if !isString {
		return "", false, n.malformed(mainTagsField+"."+key, "is not a string")
	}
	return str, true, nil
}

// DateTag reads a DICOM date tag. Absence, including an empty value,
// short-circuits before parsing.
func (n *Node) DateTag(ctx context.Context, key string) (Date, bool, error) {
	raw, ok, err := n.Tag(ctx, key)
	if err != nil || !ok || raw == "" {
		return Date{}, false, err
	}
	t, err := ParseDate(raw)
	if err != nil {
		return Date{}, false, &ParseError{Field: key, Raw: raw, Err: err}
	}
	return Date{Time: t}, true, nil
}

// parentID reads the single parent identifier that every fetched child carries.
func (n *Node) parentID(ctx context.Context, key string) (string, error) {
	id, ok, err := n.StringField(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok || id == "" {
		return "", n.malformed(key, "is missing")
	}
	return id, nil
}

// children is the memoized result of a one-to-many relationship, valid for
// one snapshot epoch.
type children[T any] struct {
	mu    sync.Mutex
	epoch uint64
	items []T
}

// resolve builds child nodes from the identifier list stored under key and
// memoizes them so repeated calls return the same instances until the parent
// is refreshed.
func (c *children[T]) resolve(ctx context.Context, n *Node, key string, build func(id string) T) ([]T, error) {
	s, err := n.current(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items != nil && c.epoch == s.epoch {
		return slices.Clone(c.items), nil
	}
	ids, ok, err := n.stringsFrom(s, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, n.malformed(key, "is missing")
	}
	items := make([]T, 0, len(ids))
	for _, id := range ids {
		items = append(items, build(id))
	}
	c.items, c.epoch = items, s.epoch
	return slices.Clone(items), nil
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		i, err := x.Int64()
		return i, err == nil
	case int:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}
