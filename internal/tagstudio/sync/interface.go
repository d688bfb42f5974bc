package sync

import (
	"context"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/graph"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/queue"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
)

// Queue is the persisted work queue. *queue.File satisfies it.
type Queue interface {
	EnsureExists() error
	Load() (*queue.LoadResult, error)
	Rewrite(items []schema.WorkItem) error
}

// Authority looks up implications for a tag. *danbooru.Client satisfies it.
//
// Any error is treated as fatal to the run.
type Authority interface {
	FetchImplications(ctx context.Context, tagName string) ([]schema.ImplicationRecord, error)
}

// Governor paces authority calls. *ratelimit.Governor satisfies it.
//
// Wait must only fail when ctx is done.
type Governor interface {
	Wait(ctx context.Context) error
}

// EdgeWriter applies implication records to the tag graph.
// *graph.Writer satisfies it.
type EdgeWriter interface {
	ApplyImplication(ctx context.Context, item schema.WorkItem, rec schema.ImplicationRecord) (graph.Outcome, schema.TagEdge, error)
}

// Observer receives progress events from a run.
//
// TagChecked and EdgeAdded are called from worker goroutines and may run
// concurrently; implementations must be safe for concurrent use and should
// not block.
type Observer interface {
	// RunStarted is called once the queue has been loaded.
	RunStarted(runID string, pending int)

	// TagChecked is called after an item's implications were fetched and applied.
	TagChecked(runID string, item schema.WorkItem, found, added int)

	// EdgeAdded is called for every edge actually written.
	EdgeAdded(runID string, item schema.WorkItem, edge schema.TagEdge)

	// RunFinished is called after the queue has been rewritten. err is the
	// value Run is about to return.
	RunFinished(result *Result, err error)
}
