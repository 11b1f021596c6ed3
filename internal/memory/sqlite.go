package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mnemo-agent/mnemo/internal/embeddings"
)

// Embedder generates query and document vectors for the index.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// SQLiteStore is a SQLite-backed semantic memory store. Embeddings are
// stored as little-endian float32 blobs; similarity ranking happens in
// process since per-user corpora stay small.
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder
	dim      int
}

// NewSQLiteStore opens (or creates) the memory database at dbPath.
// dim is the embedding dimension of the configured model; if the
// database was built with a different dimension, ErrDimensionMismatch
// is returned and the process should refuse to start rather than mix
// incompatible vectors.
func NewSQLiteStore(dbPath string, embedder Embedder, dim int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{db: db, embedder: embedder, dim: dim}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := store.checkDimension(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, created_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// checkDimension records the embedding dimension on first use and
// verifies it on every subsequent open.
func (s *SQLiteStore) checkDimension() error {
	var stored string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'embedding_dim'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(`INSERT INTO meta (key, value) VALUES ('embedding_dim', ?)`, fmt.Sprint(s.dim))
		if err != nil {
			return fmt.Errorf("record embedding dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read embedding dimension: %w", err)
	}

	if stored != fmt.Sprint(s.dim) {
		return fmt.Errorf("%w: index built with dimension %s, model produces %d", ErrDimensionMismatch, stored, s.dim)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, userID, text string) (*Record, error) {
	if userID == "" {
		return nil, ErrNoUserScope
	}

	vec, err := s.embedder.Generate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed memory: %w", err)
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dim)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, text, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), userID, text, encodeVector(vec), now)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	return &Record{ID: id.String(), UserID: userID, Text: text, CreatedAt: now}, nil
}

// Search implements Store. The query is embedded once, then ranked
// against the user's memories by cosine similarity.
func (s *SQLiteStore) Search(ctx context.Context, userID, query string, limit int) ([]Record, error) {
	if userID == "" {
		return nil, ErrNoUserScope
	}
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := s.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	records, vectors, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	top := embeddings.TopK(queryVec, vectors, limit)
	out := make([]Record, 0, len(top))
	for _, idx := range top {
		r := records[idx]
		r.Score = embeddings.CosineSimilarity(queryVec, vectors[idx])
		out = append(out, r)
	}
	return out, nil
}

// ListAll implements Store.
func (s *SQLiteStore) ListAll(ctx context.Context, userID string) ([]Record, error) {
	if userID == "" {
		return nil, ErrNoUserScope
	}
	records, _, err := s.loadUser(ctx, userID)
	return records, err
}

// loadUser reads all memories and their vectors for a user, in
// insertion order.
func (s *SQLiteStore) loadUser(ctx context.Context, userID string) ([]Record, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, embedding, created_at
		FROM memories
		WHERE user_id = ?
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var records []Record
	var vectors [][]float32
	for rows.Next() {
		var r Record
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Text, &blob, &r.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan memory: %w", err)
		}
		r.UserID = userID
		records = append(records, r)
		vectors = append(vectors, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate memories: %w", err)
	}
	return records, vectors, nil
}

// encodeVector packs a float32 slice as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks little-endian bytes into a float32 slice.
func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
