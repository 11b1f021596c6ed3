package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mnemo-agent/mnemo/internal/memory"
)

// fakeMemory is an in-memory Store for tool tests.
type fakeMemory struct {
	saved   []memory.Record
	results []memory.Record
	err     error
}

func (f *fakeMemory) Save(ctx context.Context, userID, text string) (*memory.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if userID == "" {
		return nil, memory.ErrNoUserScope
	}
	rec := memory.Record{ID: "m1", UserID: userID, Text: text, CreatedAt: time.Now()}
	f.saved = append(f.saved, rec)
	return &rec, nil
}

func (f *fakeMemory) Search(ctx context.Context, userID, query string, limit int) ([]memory.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if userID == "" {
		return nil, memory.ErrNoUserScope
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeMemory) ListAll(ctx context.Context, userID string) ([]memory.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if userID == "" {
		return nil, memory.ErrNoUserScope
	}
	return f.results, nil
}

func (f *fakeMemory) Close() error { return nil }

func setupMemoryTools(t *testing.T, store memory.Store) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := RegisterMemoryTools(reg, store, 10); err != nil {
		t.Fatalf("RegisterMemoryTools failed: %v", err)
	}
	return reg
}

func TestMemoryToolsRegistered(t *testing.T) {
	reg := setupMemoryTools(t, &fakeMemory{})

	for _, name := range []string{"save_memory", "recall_memory", "get_all_memories"} {
		if _, err := reg.Resolve(name); err != nil {
			t.Errorf("tool %q not registered: %v", name, err)
		}
	}
}

func TestSaveMemoryTool(t *testing.T) {
	store := &fakeMemory{}
	reg := setupMemoryTools(t, store)
	ctx := WithUserID(context.Background(), "alice")

	tool, _ := reg.Resolve("save_memory")
	out, err := tool.Handler(ctx, map[string]any{"content": "I love mangoes"})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if out != "Saved to memory: I love mangoes" {
		t.Errorf("output = %q", out)
	}
	if len(store.saved) != 1 || store.saved[0].UserID != "alice" {
		t.Errorf("saved = %v", store.saved)
	}

	// Empty content is a handler error, not a silent no-op.
	if _, err := tool.Handler(ctx, map[string]any{"content": "  "}); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestRecallMemoryToolFormatting(t *testing.T) {
	store := &fakeMemory{results: []memory.Record{
		{Text: "I love mangoes", Score: 0.91},
		{Text: "I am allergic to peanuts", Score: 0.42},
	}}
	reg := setupMemoryTools(t, store)
	ctx := WithUserID(context.Background(), "alice")

	tool, _ := reg.Resolve("recall_memory")
	out, err := tool.Handler(ctx, map[string]any{"query": "food"})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	want := "- I love mangoes (score: 0.91)\n- I am allergic to peanuts (score: 0.42)"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRecallMemoryToolEmpty(t *testing.T) {
	reg := setupMemoryTools(t, &fakeMemory{})
	ctx := WithUserID(context.Background(), "alice")

	tool, _ := reg.Resolve("recall_memory")
	out, err := tool.Handler(ctx, map[string]any{"query": "anything"})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if out != "No relevant memories found." {
		t.Errorf("output = %q", out)
	}
}

func TestGetAllMemoriesTool(t *testing.T) {
	store := &fakeMemory{results: []memory.Record{
		{Text: "I love mangoes"},
		{Text: "My cat is named Miso"},
	}}
	reg := setupMemoryTools(t, store)
	ctx := WithUserID(context.Background(), "alice")

	tool, _ := reg.Resolve("get_all_memories")
	out, err := tool.Handler(ctx, map[string]any{})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !strings.Contains(out, "\n---\n") {
		t.Errorf("expected separator in output %q", out)
	}

	// Empty corpus.
	empty := setupMemoryTools(t, &fakeMemory{})
	tool, _ = empty.Resolve("get_all_memories")
	out, err = tool.Handler(ctx, map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "No memories stored." {
		t.Errorf("output = %q", out)
	}
}

func TestMemoryToolsRequireUserScope(t *testing.T) {
	reg := setupMemoryTools(t, &fakeMemory{})
	ctx := context.Background() // no user scope

	tool, _ := reg.Resolve("save_memory")
	if _, err := tool.Handler(ctx, map[string]any{"content": "x"}); err == nil {
		t.Error("expected error without user scope")
	}
}
