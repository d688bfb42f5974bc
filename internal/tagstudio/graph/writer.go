// Package graph writes implication edges into the TagStudio tag graph.
//
// The Writer is the only component that inserts implication edges. It keeps
// the graph free of duplicate and self edges, and it serializes access to the
// underlying store so it can be shared by concurrent workers.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/db"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
)

// ErrTagNotFound is returned by ResolveID for names missing from the library.
var ErrTagNotFound = db.ErrTagNotFound

// Store is the part of the tag library the Writer needs. *db.DB satisfies it.
type Store interface {
	// ResolveTagID returns the id for name or an error matching ErrTagNotFound.
	ResolveTagID(ctx context.Context, name string) (int64, error)
	TagHasEdge(ctx context.Context, parent, child int64) (bool, error)
	InsertEdge(ctx context.Context, parent, child int64) error
	// Commit makes previous inserts durable and visible to later reads.
	Commit() error
}

// Writer applies implication edges to a Store.
type Writer struct {
	store Store
	mu    sync.Mutex
}

// NewWriter wraps store.
func NewWriter(store Store) *Writer {
	return &Writer{store: store}
}

// ResolveID returns the tag id for name, or an error matching ErrTagNotFound.
func (w *Writer) ResolveID(ctx context.Context, name string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.store.ResolveTagID(ctx, name)
}

// AddEdge inserts (parent, child) and commits it.
//
// It returns false without writing when parent == child or the edge is
// already present. The existence check and the insert happen under one lock,
// so concurrent callers adding the same edge insert it once.
func (w *Writer) AddEdge(ctx context.Context, parent, child int64) (bool, error) {
	if parent == child {
		return false, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	exists, err := w.store.TagHasEdge(ctx, parent, child)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := w.store.InsertEdge(ctx, parent, child); err != nil {
		return false, err
	}
	if err := w.store.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit edge %d -> %d: %w", parent, child, err)
	}

	return true, nil
}

// Outcome describes what ApplyImplication did with a record.
type Outcome int

const (
	// OutcomeIgnored: the record is inactive or does not mention the tag.
	OutcomeIgnored Outcome = iota
	// OutcomeUnknownTag: the other tag is not in the library.
	OutcomeUnknownTag
	// OutcomeSkipped: the edge is a self edge or already exists.
	OutcomeSkipped
	// OutcomeAdded: a new edge was written.
	OutcomeAdded
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnknownTag:
		return "unknown_tag"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeAdded:
		return "added"
	default:
		return "unknown"
	}
}

// ApplyImplication writes the edge an implication record implies for item.
//
// When item is the antecedent the item tag is the parent and the consequent
// the child; when item is the consequent the antecedent is the parent and the
// item tag the child. Inactive records and records naming neither side are
// ignored. A missing other tag is not an error.
func (w *Writer) ApplyImplication(ctx context.Context, item schema.WorkItem, rec schema.ImplicationRecord) (Outcome, schema.TagEdge, error) {
	if !rec.IsActive() {
		return OutcomeIgnored, schema.TagEdge{}, nil
	}

	otherName, otherIsChild, ok := schema.DirectionFor(item.TagName, rec)
	if !ok {
		return OutcomeIgnored, schema.TagEdge{}, nil
	}

	otherID, err := w.ResolveID(ctx, otherName)
	if errors.Is(err, ErrTagNotFound) {
		return OutcomeUnknownTag, schema.TagEdge{}, nil
	}
	if err != nil {
		return OutcomeIgnored, schema.TagEdge{}, err
	}

	edge := schema.TagEdge{Parent: otherID, Child: item.TagID}
	if otherIsChild {
		edge = schema.TagEdge{Parent: item.TagID, Child: otherID}
	}

	added, err := w.AddEdge(ctx, edge.Parent, edge.Child)
	if err != nil {
		return OutcomeIgnored, edge, err
	}
	if !added {
		return OutcomeSkipped, edge, nil
	}
	return OutcomeAdded, edge, nil
}
