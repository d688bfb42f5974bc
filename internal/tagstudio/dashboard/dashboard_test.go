package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
	tagsync "github.com/mschirtzinger/tagsync/internal/tagstudio/sync"
)

func startServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{
		Port:   0, // Use random available port
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

// dial connects a client and consumes the hello message.
func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeHello {
		t.Fatalf("Expected %s first, got %s", MessageTypeHello, msg.Type)
	}
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if addr := server.GetAddr(); addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("unexpected address %q", addr)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	server := startServer(t)
	base := "http://" + server.GetAddr()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	resp.Body.Close()
	if health["status"] != "ok" {
		t.Errorf("health status = %v, want ok", health["status"])
	}

	server.Metrics().TagsChecked.Add(3)

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "tagsync_tags_checked_total 3") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}

	resp, err = http.Get(base + "/nope")
	if err != nil {
		t.Fatalf("GET /nope failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}
}

func TestBroadcastToClients(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	clients := make([]*websocket.Conn, numClients)
	for i := range clients {
		clients[i] = dial(t, ctx, server)
	}
	waitForClients(t, server, numClients)

	server.Broadcast(Message{Type: MessageTypeRunStarted})

	for i, conn := range clients {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeRunStarted {
			t.Errorf("client %d: got %s, want %s", i, msg.Type, MessageTypeRunStarted)
		}
		if msg.Timestamp.IsZero() {
			t.Errorf("client %d: timestamp not set", i)
		}
	}
}

func TestClientDisconnect(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	waitForClients(t, server, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, server, 0)
}

func TestHandlerRun(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	waitForClients(t, server, 1)

	item := schema.WorkItem{TagID: 10, TagName: "blue_sky"}
	handler.RunStarted("run-1", 2)
	handler.EdgeAdded("run-1", item, schema.TagEdge{Parent: 10, Child: 5})
	handler.TagChecked("run-1", item, 1, 1)
	handler.RunFinished(&tagsync.Result{RunID: "run-1", TagsChecked: 1, ImplicationsAdded: 1,
		Remaining: []schema.WorkItem{{TagID: 11, TagName: "red_hair"}}}, nil)

	want := []MessageType{MessageTypeRunStarted, MessageTypeEdgeAdded, MessageTypeTagChecked, MessageTypeRunFinished}
	var msgs []Message
	for range want {
		msgs = append(msgs, readMessage(t, ctx, conn))
	}
	for i, msg := range msgs {
		if msg.Type != want[i] {
			t.Errorf("message %d: got %s, want %s", i, msg.Type, want[i])
		}
	}

	var edge EdgeAddedData
	if err := json.Unmarshal(msgs[1].Data, &edge); err != nil {
		t.Fatalf("Failed to unmarshal edge: %v", err)
	}
	if edge.Parent != 10 || edge.Child != 5 || edge.Tag != "blue_sky" {
		t.Errorf("unexpected edge payload %+v", edge)
	}

	var checked TagCheckedData
	if err := json.Unmarshal(msgs[2].Data, &checked); err != nil {
		t.Fatalf("Failed to unmarshal tag: %v", err)
	}
	if checked.Checked != 1 || checked.Pending != 2 {
		t.Errorf("unexpected progress payload %+v", checked)
	}

	p := handler.Progress()
	if !p.Done || p.Checked != 1 || p.Added != 1 || p.RunID != "run-1" {
		t.Errorf("unexpected progress %+v", p)
	}

	m := server.Metrics()
	if got := testutil.ToFloat64(m.TagsChecked); got != 1 {
		t.Errorf("tags checked = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ImplicationsAdded); got != 1 {
		t.Errorf("implications added = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues(OutcomeCompleted)); got != 1 {
		t.Errorf("completed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueueRemaining); got != 1 {
		t.Errorf("queue remaining = %v, want 1", got)
	}
}

func TestHandlerRunOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"completed", nil, OutcomeCompleted},
		{"aborted", fmt.Errorf("%w: lookup failed", tagsync.ErrRunAborted), OutcomeAborted},
		{"failed", errors.New("failed to persist remaining queue"), OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(&Config{Port: 0})
			handler := NewHandler(server, nil)

			handler.RunFinished(&tagsync.Result{}, tt.err)

			if got := testutil.ToFloat64(server.Metrics().Runs.WithLabelValues(tt.want)); got != 1 {
				t.Errorf("runs{outcome=%s} = %v, want 1", tt.want, got)
			}
		})
	}
}

func TestHelloCarriesProgress(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handler.RunStarted("run-7", 4)
	handler.TagChecked("run-7", schema.WorkItem{TagID: 1, TagName: "cloud"}, 2, 1)

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeHello {
		t.Fatalf("Expected %s first, got %s", MessageTypeHello, msg.Type)
	}
	var p Progress
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatalf("Failed to unmarshal hello: %v", err)
	}
	if p.RunID != "run-7" || p.Pending != 4 || p.Checked != 1 || p.Added != 1 || p.Done {
		t.Errorf("unexpected hello progress %+v", p)
	}
}

func TestIndexPage(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `new WebSocket("ws://" + location.host + "/ws")`) {
		t.Errorf("index page does not connect to /ws")
	}
}

func TestStopDisconnectsClients(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	waitForClients(t, server, 1)

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
	if n := server.ClientCount(); n != 0 {
		t.Errorf("clients after stop = %d, want 0", n)
	}
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("expected read to fail after stop")
	}

	// Broadcasting after stop is a no-op.
	server.Broadcast(Message{Type: MessageTypeRunStarted})
}
