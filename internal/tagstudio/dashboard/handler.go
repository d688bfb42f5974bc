package dashboard

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
	tagsync "github.com/mschirtzinger/tagsync/internal/tagstudio/sync"
)

// RunStartedData is the payload of run_started.
type RunStartedData struct {
	RunID   string `json:"run_id"`
	Pending int    `json:"pending"`
}

// TagCheckedData is the payload of tag_checked.
type TagCheckedData struct {
	RunID   string `json:"run_id"`
	TagID   int64  `json:"tag_id"`
	Tag     string `json:"tag"`
	Found   int    `json:"found"`
	Added   int    `json:"added"`
	Checked int    `json:"checked"`
	Pending int    `json:"pending"`
}

// EdgeAddedData is the payload of edge_added.
type EdgeAddedData struct {
	RunID  string `json:"run_id"`
	Tag    string `json:"tag"`
	Parent int64  `json:"parent_id"`
	Child  int64  `json:"child_id"`
}

// RunFinishedData is the payload of run_finished.
type RunFinishedData struct {
	Result *tagsync.Result `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// Progress is the handler's view of the current run.
type Progress struct {
	RunID   string `json:"run_id"`
	Pending int    `json:"pending"`
	Checked int    `json:"checked"`
	Added   int    `json:"added"`
	Done    bool   `json:"done"`
}

// Handler turns scheduler events into dashboard messages and metrics.
// It implements sync.Observer.
type Handler struct {
	server  *Server
	metrics *Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	progress Progress
}

var _ tagsync.Observer = (*Handler)(nil)

// NewHandler creates a handler broadcasting on server. New clients are
// greeted with the current Progress.
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:  server,
		metrics: server.Metrics(),
		logger:  logger.With("component", "dashboard"),
	}
	server.SetGreeting(func() any { return h.Progress() })
	return h
}

// RunStarted resets progress for a new run.
func (h *Handler) RunStarted(runID string, pending int) {
	h.mu.Lock()
	h.progress = Progress{RunID: runID, Pending: pending}
	h.mu.Unlock()

	h.metrics.QueueRemaining.Set(float64(pending))
	h.send(MessageTypeRunStarted, RunStartedData{RunID: runID, Pending: pending})
}

// TagChecked records a processed tag.
func (h *Handler) TagChecked(runID string, item schema.WorkItem, found, added int) {
	h.mu.Lock()
	h.progress.Checked++
	h.progress.Added += added
	p := h.progress
	h.mu.Unlock()

	h.metrics.TagsChecked.Inc()
	h.send(MessageTypeTagChecked, TagCheckedData{
		RunID:   runID,
		TagID:   item.TagID,
		Tag:     item.TagName,
		Found:   found,
		Added:   added,
		Checked: p.Checked,
		Pending: p.Pending,
	})
}

// EdgeAdded records a written edge.
func (h *Handler) EdgeAdded(runID string, item schema.WorkItem, edge schema.TagEdge) {
	h.metrics.ImplicationsAdded.Inc()
	h.send(MessageTypeEdgeAdded, EdgeAddedData{
		RunID:  runID,
		Tag:    item.TagName,
		Parent: edge.Parent,
		Child:  edge.Child,
	})
}

// RunFinished records the outcome of a run.
func (h *Handler) RunFinished(result *tagsync.Result, err error) {
	h.mu.Lock()
	h.progress.Done = true
	h.mu.Unlock()

	outcome := OutcomeCompleted
	switch {
	case tagsync.IsAborted(err):
		outcome = OutcomeAborted
	case err != nil:
		outcome = OutcomeFailed
	}
	h.metrics.Runs.WithLabelValues(outcome).Inc()
	if result != nil {
		h.metrics.QueueRemaining.Set(float64(len(result.Remaining)))
	}

	data := RunFinishedData{Result: result}
	if err != nil {
		data.Error = err.Error()
	}
	h.send(MessageTypeRunFinished, data)
}

// Progress returns a snapshot of the current run.
func (h *Handler) Progress() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

func (h *Handler) send(typ MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal payload", "type", typ, "error", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	})
}
