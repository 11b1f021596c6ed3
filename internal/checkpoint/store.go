// Package checkpoint persists per-thread conversation transcripts.
// Each thread is an append-only message log; the agent replays it as
// reasoning context on the next turn.
package checkpoint

import (
	"context"

	"github.com/mnemo-agent/mnemo/internal/llm"
)

// Store is the conversation state backend. Append must be atomic: a
// turn's messages land together or not at all, so a crash mid-turn
// never leaves a half-written transcript.
type Store interface {
	// Load returns the full transcript for a thread in append order.
	// An unknown thread yields an empty transcript, not an error.
	Load(ctx context.Context, threadID string) ([]llm.Message, error)

	// Append atomically adds messages to the end of a thread's log,
	// creating the thread if needed.
	Append(ctx context.Context, threadID string, messages []llm.Message) error

	// Threads returns known thread IDs, most recently updated first.
	Threads(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}
