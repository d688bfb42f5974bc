package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/graph"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
)

const (
	// DefaultConcurrency is the number of authority lookups allowed in flight.
	DefaultConcurrency = 3

	// ConservativeConcurrency is used after a run was aborted by rate limiting.
	ConservativeConcurrency = 1

	// DefaultProgressEvery is how many checked tags pass between progress logs.
	DefaultProgressEvery = 25
)

// State is the lifecycle stage of a Scheduler.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateAborting
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateAborting:
		return "aborting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures a Scheduler.
type Options struct {
	Queue     Queue
	Authority Authority
	Governor  Governor
	Writer    EdgeWriter

	// Concurrency bounds in-flight work items (default: 3).
	Concurrency int

	// ProgressEvery logs a progress line every N checked tags (default: 25).
	ProgressEvery int

	// Observers receive run events (optional).
	Observers []Observer

	// Logger for scheduler activity (default: slog.Default()).
	Logger *slog.Logger
}

// Result summarizes a run. Counters cover only this run.
type Result struct {
	RunID string `json:"run_id"`

	// Pending is the number of items loaded from the queue.
	Pending int `json:"pending"`

	// Skipped is the number of malformed queue lines dropped at load.
	Skipped int `json:"skipped"`

	// TagsChecked counts items whose authority lookup was issued.
	TagsChecked int `json:"tags_checked"`

	// ImplicationsFound counts active records mentioning the checked tag.
	ImplicationsFound int `json:"implications_found"`

	// ImplicationsAdded counts edges actually inserted.
	ImplicationsAdded int `json:"implications_added"`

	// Resolved counts distinct items completed during the run.
	Resolved int `json:"resolved"`

	// Remaining are the items written back to the queue, in queue order.
	Remaining []schema.WorkItem `json:"remaining"`

	Elapsed time.Duration `json:"elapsed"`

	// Aborted is true when a failure stopped the run early.
	Aborted bool `json:"aborted"`
}

// completion is sent by a worker once an item is fully processed.
type completion struct {
	item  schema.WorkItem
	found int
	added int
}

// Scheduler drains the work queue. See the package documentation.
type Scheduler struct {
	opts   Options
	logger *slog.Logger
	state  atomic.Int32

	// cancelled is the cooperative abort flag checked before every authority call.
	cancelled atomic.Bool
	cancelRun context.CancelFunc

	errMu    stdsync.Mutex
	firstErr error

	checked atomic.Int64
}

// New creates a Scheduler. Queue, Authority, Governor and Writer are required.
func New(opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ProgressEvery < 1 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Scheduler{
		opts:   opts,
		logger: opts.Logger.With("component", "scheduler"),
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run drains the queue once.
//
// The returned Result is non-nil whenever the queue was loaded, including on
// abort. A run stopped by a failure returns an error wrapping ErrRunAborted
// and the cause; a failure to rewrite the queue is joined to it.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyStarted
	}
	if err := s.validate(); err != nil {
		s.state.Store(int32(StateStopped))
		return nil, err
	}

	start := time.Now()
	result := &Result{RunID: uuid.NewString()}
	log := s.logger.With("run_id", result.RunID)

	if err := s.opts.Queue.EnsureExists(); err != nil {
		s.state.Store(int32(StateStopped))
		return nil, fmt.Errorf("failed to prepare queue: %w", err)
	}
	loaded, err := s.opts.Queue.Load()
	if err != nil {
		s.state.Store(int32(StateStopped))
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	pending := loaded.Items
	result.Pending = len(pending)
	result.Skipped = loaded.Skipped

	log.Info("starting implication sync",
		"pending", len(pending),
		"skipped", loaded.Skipped,
		"concurrency", s.opts.Concurrency)
	for _, o := range s.opts.Observers {
		o.RunStarted(result.RunID, len(pending))
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	s.cancelRun = cancelRun

	// Completion accounting runs on its own goroutine and sees results in
	// whatever order workers finish.
	completions := make(chan completion, s.opts.Concurrency)
	resolved := make(map[schema.WorkItem]struct{})
	accounted := make(chan struct{})
	go func() {
		defer close(accounted)
		for c := range completions {
			result.ImplicationsFound += c.found
			result.ImplicationsAdded += c.added
			resolved[c.item] = struct{}{}
		}
	}()

	sem := semaphore.NewWeighted(int64(s.opts.Concurrency))
	var wg stdsync.WaitGroup

	dispatched := 0
	for _, item := range pending {
		if s.cancelled.Load() {
			break
		}
		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}
		if s.cancelled.Load() {
			sem.Release(1)
			break
		}

		dispatched++
		wg.Add(1)
		go func(item schema.WorkItem) {
			defer wg.Done()
			defer sem.Release(1)
			s.process(ctx, runCtx, item, result.RunID, completions)
		}(item)
	}

	// A cancelled caller context stops dispatch without a worker failure.
	if err := ctx.Err(); err != nil && dispatched < len(pending) {
		s.abort(fmt.Errorf("interrupted: %w", err))
	}
	s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))

	wg.Wait()
	close(completions)
	<-accounted

	// Shutdown: persist whatever was not resolved, in original order.
	remaining := make([]schema.WorkItem, 0, len(pending))
	for _, item := range pending {
		if _, ok := resolved[item]; !ok {
			remaining = append(remaining, item)
		}
	}
	// Workers stopped by the caller's context leave their items unresolved.
	if err := ctx.Err(); err != nil && len(remaining) > 0 {
		s.abort(fmt.Errorf("interrupted: %w", err))
	}
	rewriteErr := s.opts.Queue.Rewrite(remaining)
	if rewriteErr != nil {
		rewriteErr = fmt.Errorf("%w: %w", ErrQueueNotPersisted, rewriteErr)
		log.Error("queue rewrite failed", "error", rewriteErr, "remaining", len(remaining))
	}

	result.TagsChecked = int(s.checked.Load())
	result.Resolved = len(resolved)
	result.Remaining = remaining
	result.Elapsed = time.Since(start)

	var runErr error
	if cause := s.cause(); cause != nil {
		result.Aborted = true
		runErr = fmt.Errorf("%w: %w", ErrRunAborted, cause)
		log.Warn("implication sync aborted",
			"error", cause,
			"tags_checked", result.TagsChecked,
			"remaining", len(remaining))
	} else {
		log.Info("implication sync complete",
			"tags_checked", result.TagsChecked,
			"implications_found", result.ImplicationsFound,
			"implications_added", result.ImplicationsAdded,
			"elapsed", result.Elapsed.Round(time.Millisecond))
	}
	runErr = errors.Join(runErr, rewriteErr)

	s.state.Store(int32(StateStopped))
	for _, o := range s.opts.Observers {
		o.RunFinished(result, runErr)
	}

	return result, runErr
}

// process handles one work item. It reports a completion only when every
// implication of the item was applied.
func (s *Scheduler) process(ctx, runCtx context.Context, item schema.WorkItem, runID string, completions chan<- completion) {
	if err := s.opts.Governor.Wait(runCtx); err != nil {
		// The limiter refuses up front when the caller's deadline cannot be
		// met, before ctx itself reports an error.
		if !s.cancelled.Load() && ctx.Err() == nil {
			s.abort(fmt.Errorf("waiting to look up %s: %w", item, err))
		}
		return
	}
	if s.cancelled.Load() {
		return
	}

	if n := s.checked.Add(1); n%int64(s.opts.ProgressEvery) == 0 {
		s.logger.Info("still running", "run_id", runID, "tags_checked", n)
	}

	// The lookup uses the caller context, not runCtx: an abort must not cut
	// off requests that are already on the wire.
	records, err := s.opts.Authority.FetchImplications(ctx, item.TagName)
	if err != nil {
		s.abort(fmt.Errorf("lookup for %s: %w", item, err))
		return
	}

	c := completion{item: item}
	for _, rec := range records {
		outcome, edge, err := s.opts.Writer.ApplyImplication(ctx, item, rec)
		if err != nil {
			s.abort(fmt.Errorf("writing implications of %s: %w", item, err))
			return
		}

		switch outcome {
		case graph.OutcomeAdded:
			c.found++
			c.added++
			s.logger.Debug("edge added", "run_id", runID, "tag", item.TagName, "parent", edge.Parent, "child", edge.Child)
			for _, o := range s.opts.Observers {
				o.EdgeAdded(runID, item, edge)
			}
		case graph.OutcomeSkipped, graph.OutcomeUnknownTag:
			c.found++
		}
	}

	for _, o := range s.opts.Observers {
		o.TagChecked(runID, item, c.found, c.added)
	}
	completions <- c
}

// abort records the first failure, raises the cancellation flag and cancels
// the run context. Later calls only log.
func (s *Scheduler) abort(err error) {
	s.errMu.Lock()
	first := s.firstErr == nil
	if first {
		s.firstErr = err
	}
	s.errMu.Unlock()

	if !first {
		s.logger.Debug("additional failure after abort", "error", err)
		return
	}

	s.cancelled.Store(true)
	if s.cancelRun != nil {
		s.cancelRun()
	}
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateAborting)) {
		s.state.CompareAndSwap(int32(StateDraining), int32(StateAborting))
	}
	s.logger.Error("aborting implication sync", "error", err)
}

func (s *Scheduler) cause() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.firstErr
}

func (s *Scheduler) validate() error {
	switch {
	case s.opts.Queue == nil:
		return fmt.Errorf("scheduler: queue is required")
	case s.opts.Authority == nil:
		return fmt.Errorf("scheduler: authority is required")
	case s.opts.Governor == nil:
		return fmt.Errorf("scheduler: governor is required")
	case s.opts.Writer == nil:
		return fmt.Errorf("scheduler: writer is required")
	}
	return nil
}
