package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mnemo-agent/mnemo/internal/httpkit"
)

// RemoteStore talks to a mem0-style memory service over HTTP. It is the
// drop-in alternative to the local SQLite index for deployments that
// already run a shared memory server.
type RemoteStore struct {
	baseURL string
	client  *http.Client
}

// NewRemoteStore creates a store backed by the service at baseURL.
func NewRemoteStore(baseURL string) *RemoteStore {
	return &RemoteStore{
		baseURL: baseURL,
		client: httpkit.NewClient(
			httpkit.WithTimeout(30 * time.Second),
		),
	}
}

// Close implements Store. The remote service owns its resources.
func (s *RemoteStore) Close() error { return nil }

// remoteEnvelope matches the two response shapes mem0-style servers
// produce: a bare array, or an object wrapping it in "results".
type remoteEnvelope struct {
	Results []Record
}

func (e *remoteEnvelope) UnmarshalJSON(data []byte) error {
	var bare []Record
	if err := json.Unmarshal(data, &bare); err == nil {
		e.Results = bare
		return nil
	}
	var wrapped struct {
		Results []Record `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	e.Results = wrapped.Results
	return nil
}

// Save implements Store.
func (s *RemoteStore) Save(ctx context.Context, userID, text string) (*Record, error) {
	if userID == "" {
		return nil, ErrNoUserScope
	}

	payload := map[string]any{
		"messages": []map[string]string{{"role": "user", "content": text}},
		"user_id":  userID,
	}

	var env remoteEnvelope
	if err := s.post(ctx, "/memories", payload, &env); err != nil {
		return nil, fmt.Errorf("save memory: %w", err)
	}

	rec := &Record{UserID: userID, Text: text, CreatedAt: time.Now().UTC()}
	if len(env.Results) > 0 {
		rec.ID = env.Results[0].ID
	}
	return rec, nil
}

// Search implements Store.
func (s *RemoteStore) Search(ctx context.Context, userID, query string, limit int) ([]Record, error) {
	if userID == "" {
		return nil, ErrNoUserScope
	}
	if limit <= 0 {
		limit = 10
	}

	payload := map[string]any{
		"query":   query,
		"user_id": userID,
		"limit":   limit,
	}

	var env remoteEnvelope
	if err := s.post(ctx, "/search", payload, &env); err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	return env.Results, nil
}

// ListAll implements Store.
func (s *RemoteStore) ListAll(ctx context.Context, userID string) ([]Record, error) {
	if userID == "" {
		return nil, ErrNoUserScope
	}

	u := s.baseURL + "/memories?user_id=" + url.QueryEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("memory service returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var env remoteEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return env.Results, nil
}

func (s *RemoteStore) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("memory service returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
