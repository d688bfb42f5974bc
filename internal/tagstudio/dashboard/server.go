// Package dashboard streams implication sync progress to WebSocket clients.
//
// The dashboard broadcasts run, tag and edge events to connected clients and
// exposes Prometheus metrics, so a long rate-limited sync can be followed from
// a browser instead of the log.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeRunStarted indicates a sync run loaded its queue
	MessageTypeRunStarted MessageType = "run_started"

	// MessageTypeTagChecked indicates a tag's implications were applied
	MessageTypeTagChecked MessageType = "tag_checked"

	// MessageTypeEdgeAdded indicates an implication edge was written
	MessageTypeEdgeAdded MessageType = "edge_added"

	// MessageTypeRunFinished indicates a run stopped, completed or aborted
	MessageTypeRunFinished MessageType = "run_finished"

	// MessageTypeHello is the first frame on every connection. Its data is
	// the greeting snapshot, if one is set.
	MessageTypeHello MessageType = "hello"
)

// Message is one frame sent to clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	// clientQueueSize frames may wait per client before it is dropped as slow.
	clientQueueSize = 256

	writeTimeout = 5 * time.Second
)

// subscriber is a connected client and its pending frames.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Server fans dashboard messages out to WebSocket subscribers.
type Server struct {
	addr    string
	metrics *Metrics
	logger  *slog.Logger

	listener net.Listener
	http     *http.Server

	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	greeting func() any

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Metrics served on /metrics (default: NewMetrics())
	Metrics *Metrics

	// Logger for server activity (default: slog.Default())
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: slog.Default(),
	}
}

// NewServer creates a dashboard server. Call Start to listen.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    fmt.Sprintf(":%d", config.Port),
		metrics: metrics,
		logger:  logger.With("component", "dashboard"),
		subs:    make(map[*subscriber]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.http = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("dashboard listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWebSocket)
	mux.HandleFunc("GET /health", s.serveHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /{$}", s.serveIndex)
	return mux
}

// Stop disconnects every client and shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")
	s.cancel()

	s.mu.Lock()
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.send)
		_ = sub.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	s.mu.Unlock()

	if s.http == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()
	return nil
}

// Metrics returns the collectors served on /metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// SetGreeting sets the snapshot sent as hello data to new clients.
func (s *Server) SetGreeting(fn func() any) {
	s.mu.Lock()
	s.greeting = fn
	s.mu.Unlock()
}

// Broadcast queues msg for every client without blocking. A client whose
// queue is full is disconnected.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal message", "type", msg.Type, "error", err)
		return
	}

	var slow []*subscriber
	s.mu.RLock()
	for sub := range s.subs {
		select {
		case sub.send <- frame:
		default:
			slow = append(slow, sub)
		}
	}
	s.mu.RUnlock()

	for _, sub := range slow {
		s.logger.Warn("dropping slow client", "type", msg.Type)
		s.unsubscribe(sub, websocket.StatusPolicyViolation, "too slow")
	}
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// The hello goes out before the subscriber is visible to Broadcast.
	if err := s.greet(r.Context(), conn); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, clientQueueSize)}
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.subs[sub] = struct{}{}
	n := len(s.subs)
	s.mu.Unlock()
	s.logger.Info("client connected", "clients", n)

	defer s.unsubscribe(sub, websocket.StatusNormalClosure, "")

	// Clients only listen; CloseRead discards their frames and ends ctx
	// when they go away.
	ctx := conn.CloseRead(s.ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.logger.Debug("failed to send to client", "error", err)
				return
			}
		}
	}
}

func (s *Server) greet(ctx context.Context, conn *websocket.Conn) error {
	hello := Message{Type: MessageTypeHello, Timestamp: time.Now()}

	s.mu.RLock()
	greeting := s.greeting
	s.mu.RUnlock()
	if greeting != nil {
		data, err := json.Marshal(greeting())
		if err != nil {
			return err
		}
		hello.Data = data
	}

	frame, err := json.Marshal(hello)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

func (s *Server) unsubscribe(sub *subscriber, code websocket.StatusCode, reason string) {
	s.mu.Lock()
	if _, ok := s.subs[sub]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subs, sub)
	close(sub.send)
	n := len(s.subs)
	s.mu.Unlock()

	_ = sub.conn.Close(code, reason)
	s.logger.Info("client disconnected", "clients", n)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, indexPage)
}

// indexPage follows the run over /ws.
const indexPage = `<!DOCTYPE html>
<html>
<head><title>tagsync</title></head>
<body>
<h1>tagsync implication sync</h1>
<p id="status">connecting...</p>
<p>checked <span id="checked">0</span> of <span id="pending">0</span>, edges added <span id="added">0</span></p>
<ul id="log"></ul>
<p><a href="/metrics">metrics</a> · <a href="/health">health</a></p>
<script>
const $ = id => document.getElementById(id);
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = ev => {
  const m = JSON.parse(ev.data), d = m.data || {};
  switch (m.type) {
  case "hello":
    $("status").textContent = d.run_id ? (d.done ? "finished " : "running ") + d.run_id : "idle";
    $("checked").textContent = d.checked || 0; $("pending").textContent = d.pending || 0; $("added").textContent = d.added || 0;
    break;
  case "run_started":
    $("status").textContent = "running " + d.run_id; $("pending").textContent = d.pending;
    $("checked").textContent = 0; $("added").textContent = 0; $("log").innerHTML = "";
    break;
  case "tag_checked":
    $("checked").textContent = d.checked; $("added").textContent = Number($("added").textContent) + d.added;
    break;
  case "edge_added": {
    const li = document.createElement("li");
    li.textContent = d.tag + ": " + d.parent_id + " -> " + d.child_id;
    $("log").prepend(li);
    break;
  }
  case "run_finished":
    $("status").textContent = d.error ? "aborted: " + d.error : "finished";
    break;
  }
};
ws.onclose = () => { $("status").textContent += " (disconnected)"; };
</script>
</body>
</html>
`

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
