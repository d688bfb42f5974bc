// Package sync discovers tag implications for newly created tags and writes
// them into the TagStudio tag graph.
//
// Overview
//
// The attach step appends a line to the work queue for every tag it creates.
// A Scheduler run drains that queue: for each item it asks Danbooru which
// implications mention the tag, writes the resulting parent/child edges, and
// marks the item resolved. When the run stops, for any reason, the queue file
// is rewritten with exactly the items that were not resolved.
//
// Architecture
//
//	queue file ──Load──▶ Scheduler ──dispatch (file order)──▶ workers (≤ Concurrency)
//	                        │                                     │
//	                        │                          Governor.Wait (shared pacing)
//	                        │                                     │
//	                        │                          Authority.FetchImplications
//	                        │                                     │
//	                        │                          Writer.ApplyImplication ──▶ tag_parents
//	                        │                                     │
//	                        ◀──────────── completions (any order) ┘
//	                        │
//	queue file ◀─Rewrite── remaining = pending − resolved
//
// Abort
//
// The authority enforces a hard request ceiling and answers with an error once
// it is exceeded. Any failed lookup (or a failed graph write) aborts the run:
// a cancellation flag is set and the run context is cancelled, so nothing new
// is dispatched and tasks still waiting for a slot or for the governor give up
// without calling the authority. Lookups already on the wire are allowed to
// finish; if they succeed their edges are written and their items resolved.
// The first failure is returned, wrapped in ErrRunAborted.
//
// States
//
//	Idle ──Run──▶ Running ──all dispatched──▶ Draining ──▶ Stopped
//	                 │                           │
//	                 └────── failure ──▶ Aborting ┘──────▶ Stopped
//
// Usage
//
//	lib, err := db.Open(libraryPath)
//	if err != nil {
//	    return err
//	}
//	defer lib.Close()
//
//	scheduler := sync.New(sync.Options{
//	    Queue:       queue.New("tags_to_check.jsonl", logger),
//	    Authority:   danbooru.NewClient(),
//	    Governor:    ratelimit.New(time.Second, 1),
//	    Writer:      graph.NewWriter(lib),
//	    Concurrency: 3,
//	    Logger:      logger,
//	})
//
//	result, err := scheduler.Run(ctx)
//	if sync.IsSafeAbort(err) {
//	    // result.Remaining items are back in the queue; retry later
//	}
//
// If the queue file cannot be rewritten the error also matches
// ErrQueueNotPersisted, and the remaining items exist only in the Result.
//
// A Scheduler is single-use; create a new one for every run. Running two
// schedulers against the same queue file at once is not supported.
package sync
