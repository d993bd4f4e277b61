// Package api serves the HTTP ingress: query submission, record lookup and
// the Server-Sent Events progress stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/webpilot/internal/engine"
	"github.com/rahul/webpilot/internal/store"
	"github.com/rahul/webpilot/internal/worker"
	"go.uber.org/zap"
)

// Engine is what the server needs from the query engine.
type Engine interface {
	Submit(ctx context.Context, queryID, query string) error
	Cancel(queryID string) bool
	Record(ctx context.Context, queryID string) (*store.Record, error)
	List(ctx context.Context, limit int) ([]store.Record, error)
	Subscribe(queryID string) (<-chan []byte, func())
	Health() engine.Health
}

const keepAlive = 15 * time.Second

type Server struct {
	engine Engine
	logger *zap.Logger
	// KeepAlive is the SSE comment interval.
	KeepAlive time.Duration
}

func NewServer(eng Engine, logger *zap.Logger) *Server {
	return &Server{engine: eng, logger: logger.Named("api"), KeepAlive: keepAlive}
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /interact", s.handleInteract)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /queries", s.handleList)
	mux.HandleFunc("GET /queries/{id}", s.handleRecord)
	mux.HandleFunc("DELETE /queries/{id}", s.handleCancel)
	return cors(mux)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type interactRequest struct {
	Query   string `json:"query"`
	QueryID string `json:"query_id"`
}

type interactResponse struct {
	QueryID string `json:"query_id"`
	Status  string `json:"status"`
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req interactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "Query is required")
		return
	}
	if req.QueryID == "" {
		req.QueryID = uuid.NewString()
	}

	if err := s.engine.Submit(r.Context(), req.QueryID, req.Query); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, engine.ErrDuplicate):
			status = http.StatusConflict
		case errors.Is(err, engine.ErrEmptyQuery):
			status = http.StatusBadRequest
		case errors.Is(err, worker.ErrClosed):
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("submit failed", zap.String("query_id", req.QueryID), zap.Error(err))
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, interactResponse{QueryID: req.QueryID, Status: "processing"})
}

// handleStream relays hub events as SSE until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	queryID := r.URL.Query().Get("query_id")
	events, unsubscribe := s.engine.Subscribe(queryID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(s.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case b, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Record(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	recs, err := s.engine.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.engine.Cancel(id) {
		respondError(w, http.StatusNotFound, "query "+id+" is not running")
		return
	}
	respondJSON(w, http.StatusOK, interactResponse{QueryID: id, Status: "cancelling"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		engine.Health
	}{"ok", s.engine.Health()})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// cors allows the local frontend on another port.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
