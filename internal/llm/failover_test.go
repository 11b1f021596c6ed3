package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeClient is a scripted provider for failover tests.
type fakeClient struct {
	name  string
	resp  *ChatResponse
	err   error
	calls int
}

func (f *fakeClient) Chat(ctx context.Context, messages []Message, tools []ToolSchema) (*ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeClient) Ping(ctx context.Context) error { return f.err }
func (f *fakeClient) Name() string                   { return f.name }

func TestFailoverUsesFirstHealthyProvider(t *testing.T) {
	primary := &fakeClient{name: "gateway", resp: &ChatResponse{Message: Message{Role: "assistant", Content: "from gateway"}}}
	backup := &fakeClient{name: "ollama", resp: &ChatResponse{Message: Message{Role: "assistant", Content: "from ollama"}}}

	fc, err := NewFailoverClient(discardLogger(), primary, backup)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := fc.Chat(context.Background(), []Message{UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message.Content != "from gateway" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if backup.calls != 0 {
		t.Errorf("backup called %d times, want 0", backup.calls)
	}
}

func TestFailoverFallsThrough(t *testing.T) {
	primary := &fakeClient{name: "gateway", err: errors.New("connection refused")}
	backup := &fakeClient{name: "ollama", resp: &ChatResponse{Message: Message{Role: "assistant", Content: "from ollama"}}}

	fc, err := NewFailoverClient(discardLogger(), primary, backup)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := fc.Chat(context.Background(), []Message{UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message.Content != "from ollama" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Errorf("calls = %d/%d", primary.calls, backup.calls)
	}
}

func TestFailoverAllFail(t *testing.T) {
	primary := &fakeClient{name: "gateway", err: errors.New("boom")}
	backup := &fakeClient{name: "ollama", err: errors.New("also boom")}

	fc, err := NewFailoverClient(discardLogger(), primary, backup)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fc.Chat(context.Background(), []Message{UserMessage("hi")}, nil); err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestFailoverStopsOnCanceledContext(t *testing.T) {
	primary := &fakeClient{name: "gateway", err: context.Canceled}
	backup := &fakeClient{name: "ollama", resp: &ChatResponse{}}

	fc, err := NewFailoverClient(discardLogger(), primary, backup)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = fc.Chat(ctx, []Message{UserMessage("hi")}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if backup.calls != 0 {
		t.Errorf("backup called %d times after cancellation, want 0", backup.calls)
	}
	// The in-flight provider is named even on the cancellation path.
	if !strings.Contains(err.Error(), "gateway:") {
		t.Errorf("error lacks provider attribution: %v", err)
	}
}

func TestNewFailoverClientRequiresProviders(t *testing.T) {
	if _, err := NewFailoverClient(discardLogger()); err == nil {
		t.Fatal("expected error for empty provider list")
	}
}
