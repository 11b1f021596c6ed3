package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mnemo-agent/mnemo/internal/agent"
	"github.com/mnemo-agent/mnemo/internal/checkpoint"
	"github.com/mnemo-agent/mnemo/internal/events"
	"github.com/mnemo-agent/mnemo/internal/llm"
	"github.com/mnemo-agent/mnemo/internal/tools"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoReasoner answers every turn with a fixed reply.
type echoReasoner struct {
	reply string
}

func (e echoReasoner) Step(ctx context.Context, history []llm.Message, schemas []llm.ToolSchema) (llm.Message, error) {
	return llm.Message{Role: "assistant", Content: e.reply}, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	bus := events.New()
	threads := checkpoint.NewMemStore()
	loop := agent.New(agent.Config{
		Logger:   discardLogger(),
		Reasoner: echoReasoner{reply: "hello from the agent"},
		Registry: tools.NewRegistry(),
		Threads:  threads,
		Bus:      bus,
		UserID:   "tester",
	})

	srv := NewServer("", 0, loop, threads, bus, 30*time.Second, discardLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postChat(t *testing.T, url string, req ChatRequest) (*http.Response, ChatResponse) {
	t.Helper()
	body, _ := json.Marshal(req)
	resp, err := http.Post(url+"/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/chat: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var out ChatResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, out
}

func TestChatRejectedUntilReady(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, _ := postChat(t, ts.URL, ChatRequest{Message: "hi"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status before ready = %d, want 503", resp.StatusCode)
	}

	srv.SetReady()
	resp, out := postChat(t, ts.URL, ChatRequest{Message: "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status after ready = %d", resp.StatusCode)
	}
	if out.Response != "hello from the agent" {
		t.Errorf("response = %q", out.Response)
	}
}

func TestHealthTracksReadiness(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("healthz before ready = %d, want 503", resp.StatusCode)
	}

	srv.SetReady()
	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz after ready = %d", resp.StatusCode)
	}
}

func TestChatValidation(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.SetReady()

	resp, _ := postChat(t, ts.URL, ChatRequest{Message: ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", resp.StatusCode)
	}

	r, err := http.Post(ts.URL+"/v1/chat", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", r.StatusCode)
	}
}

func TestChatThreadIDAndUsageShape(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.SetReady()

	resp, out := postChat(t, ts.URL, ChatRequest{Message: "hi", ThreadID: "t42"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.ThreadID != "t42" {
		t.Errorf("thread_id = %q", out.ThreadID)
	}
	// tool_usage must be a list even when nothing ran, not null.
	if out.ToolUsage == nil {
		t.Error("tool_usage missing from response")
	}

	resp, out = postChat(t, ts.URL, ChatRequest{Message: "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.ThreadID != "default" {
		t.Errorf("default thread_id = %q", out.ThreadID)
	}
}

func TestThreadEndpoints(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.SetReady()

	postChat(t, ts.URL, ChatRequest{Message: "hi", ThreadID: "t1"})

	resp, err := http.Get(ts.URL + "/v1/threads")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list struct {
		Threads []string `json:"threads"`
		Count   int      `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || len(list.Threads) != 1 || list.Threads[0] != "t1" {
		t.Errorf("threads = %+v", list)
	}

	resp, err = http.Get(ts.URL + "/v1/threads/t1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var thread struct {
		ThreadID string        `json:"thread_id"`
		Messages []llm.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&thread); err != nil {
		t.Fatal(err)
	}
	if len(thread.Messages) != 2 {
		t.Errorf("thread messages = %d, want 2", len(thread.Messages))
	}

	resp, err = http.Get(ts.URL + "/v1/threads/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing thread status = %d, want 404", resp.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.SetReady()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()

	// Give the subscriber a moment to attach before the turn runs.
	time.Sleep(50 * time.Millisecond)
	postChat(t, ts.URL, ChatRequest{Message: "hi", ThreadID: "t1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e events.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if e.Kind != events.KindTurnStarted || e.ThreadID != "t1" {
		t.Errorf("first event = %+v", e)
	}

	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read second event: %v", err)
	}
	if e.Kind != events.KindTurnCompleted {
		t.Errorf("second event = %+v", e)
	}
}
