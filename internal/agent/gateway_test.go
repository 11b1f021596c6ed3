package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mnemo-agent/mnemo/internal/llm"
)

// fakeLLM fails a fixed number of times before succeeding.
type fakeLLM struct {
	failures int
	calls    int
}

func (f *fakeLLM) Chat(ctx context.Context, msgs []llm.Message, schemas []llm.ToolSchema) (*llm.ChatResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("upstream unavailable")
	}
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: "ok"}}, nil
}

func (f *fakeLLM) Ping(ctx context.Context) error { return nil }
func (f *fakeLLM) Name() string                   { return "fake" }

func TestGatewayRetriesThenSucceeds(t *testing.T) {
	client := &fakeLLM{failures: 2}
	g := NewGateway(client, discardLogger(), time.Second, 2)

	msg, err := g.Step(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if msg.Content != "ok" {
		t.Errorf("content = %q", msg.Content)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3", client.calls)
	}
}

func TestGatewayExhaustsRetryBudget(t *testing.T) {
	client := &fakeLLM{failures: 100}
	g := NewGateway(client, discardLogger(), time.Second, 1)

	if _, err := g.Step(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error after retry budget")
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

func TestGatewayHonorsCancellation(t *testing.T) {
	client := &fakeLLM{failures: 100}
	g := NewGateway(client, discardLogger(), time.Second, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Step(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if client.calls != 0 {
		t.Errorf("calls = %d after cancellation", client.calls)
	}
}

func TestActionFromClassification(t *testing.T) {
	tests := []struct {
		name     string
		msg      llm.Message
		wantTool bool
	}{
		{"plain text", llm.Message{Role: "assistant", Content: "hello"}, false},
		{"empty message", llm.Message{Role: "assistant"}, false},
		{"tool calls", toolCallMsg(call("c1", "echo", nil)), true},
		{"text and tool calls", llm.Message{
			Role:      "assistant",
			Content:   "working on it",
			ToolCalls: []llm.ToolCall{call("c1", "echo", nil)},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := actionFrom(tt.msg, discardLogger())
			_, isTool := action.(ToolCalls)
			if isTool != tt.wantTool {
				t.Errorf("got %T, wantTool=%v", action, tt.wantTool)
			}
		})
	}
}
