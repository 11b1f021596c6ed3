// Package api implements the Mnemo HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mnemo-agent/mnemo/internal/agent"
	"github.com/mnemo-agent/mnemo/internal/buildinfo"
	"github.com/mnemo-agent/mnemo/internal/checkpoint"
	"github.com/mnemo-agent/mnemo/internal/events"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address        string
	port           int
	loop           *agent.Loop
	threads        checkpoint.Store
	bus            *events.Bus
	logger         *slog.Logger
	server         *http.Server
	requestTimeout time.Duration
	ready          atomic.Bool
}

// NewServer creates an API server. The server reports 503 on /v1/chat
// and /healthz until [Server.SetReady] is called.
func NewServer(address string, port int, loop *agent.Loop, threads checkpoint.Store, bus *events.Bus, requestTimeout time.Duration, logger *slog.Logger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 300 * time.Second
	}
	return &Server{
		address:        address,
		port:           port,
		loop:           loop,
		threads:        threads,
		bus:            bus,
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

// SetReady marks initialization complete. Until then chat requests are
// rejected with 503 so load balancers hold traffic during startup.
func (s *Server) SetReady() {
	s.ready.Store(true)
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/threads", s.handleThreadList)
	mux.HandleFunc("GET /v1/threads/{id}", s.handleThreadGet)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener
// closes.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Write timeout must outlast a full agent turn.
		WriteTimeout: s.requestTimeout + 30*time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Mnemo",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "initializing"}, s.logger)
		return
	}
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// ChatRequest is one user turn.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ChatResponse carries the agent's answer plus a per-step tool usage
// report.
type ChatResponse struct {
	Response  string            `json:"response"`
	ThreadID  string            `json:"thread_id"`
	ToolUsage [][]agent.ToolUse `json:"tool_usage"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		s.errorResponse(w, http.StatusServiceUnavailable, "agent not initialized yet")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	resp, err := s.loop.Run(ctx, agent.Request{
		Message:  req.Message,
		ThreadID: req.ThreadID,
	})
	if err != nil {
		s.logger.Error("agent turn failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "agent error: "+err.Error())
		return
	}

	usage := resp.ToolUsage
	if usage == nil {
		usage = [][]agent.ToolUse{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		Response:  resp.Content,
		ThreadID:  resp.ThreadID,
		ToolUsage: usage,
	}, s.logger)
}

func (s *Server) handleThreadList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.threads.Threads(r.Context())
	if err != nil {
		s.logger.Error("thread list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list threads")
		return
	}
	if ids == nil {
		ids = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"threads": ids,
		"count":   len(ids),
	}, s.logger)
}

func (s *Server) handleThreadGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	msgs, err := s.threads.Load(r.Context(), id)
	if err != nil {
		s.logger.Error("thread load failed", "thread_id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load thread")
		return
	}
	if len(msgs) == 0 {
		s.errorResponse(w, http.StatusNotFound, "thread not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"thread_id": id,
		"messages":  msgs,
		"count":     len(msgs),
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
