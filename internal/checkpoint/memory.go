package checkpoint

import (
	"context"
	"sync"

	"github.com/mnemo-agent/mnemo/internal/llm"
)

// MemStore is an in-memory Store, used by the ask subcommand and tests
// where persistence across runs is unwanted.
type MemStore struct {
	mu      sync.RWMutex
	threads map[string][]llm.Message
	order   []string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{threads: make(map[string][]llm.Message)}
}

// Load implements Store.
func (s *MemStore) Load(ctx context.Context, threadID string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.threads[threadID]
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Append implements Store.
func (s *MemStore) Append(ctx context.Context, threadID string, messages []llm.Message) error {
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Move the thread to the end of the order so Threads reports by
	// last append, matching SQLiteStore's updated_at ordering.
	for i, id := range s.order {
		if id == threadID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, threadID)
	s.threads[threadID] = append(s.threads[threadID], messages...)
	return nil
}

// Threads implements Store. Most recently appended thread first.
func (s *MemStore) Threads(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	for i, id := range s.order {
		out[len(s.order)-1-i] = id
	}
	return out, nil
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }
