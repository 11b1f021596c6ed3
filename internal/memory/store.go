// Package memory provides the semantic memory store: user-scoped facts
// indexed by embedding vectors and recalled by similarity search.
package memory

import (
	"context"
	"errors"
	"time"
)

// Record is one stored memory.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"memory"`
	CreatedAt time.Time `json:"created_at"`

	// Score is the similarity to the query, populated by Search only.
	Score float32 `json:"score,omitempty"`
}

// ErrNoUserScope is returned when an operation is attempted without a
// user ID. Memory is always user-scoped; an unscoped write or read
// would leak across users.
var ErrNoUserScope = errors.New("memory: operation requires a user id")

// ErrDimensionMismatch is returned when a stored index was built with a
// different embedding model (different vector dimension) than the one
// currently configured.
var ErrDimensionMismatch = errors.New("memory: embedding dimension does not match stored index")

// Store is the semantic memory backend. Implementations must scope every
// operation to the given user and tolerate concurrent use.
type Store interface {
	// Save persists a new memory for the user. Existing memories are
	// never mutated; corrections accumulate as new records.
	Save(ctx context.Context, userID, text string) (*Record, error)

	// Search returns up to limit memories most relevant to query,
	// best match first.
	Search(ctx context.Context, userID, query string, limit int) ([]Record, error)

	// ListAll returns every memory for the user in insertion order.
	ListAll(ctx context.Context, userID string) ([]Record, error)

	// Close releases backend resources.
	Close() error
}
