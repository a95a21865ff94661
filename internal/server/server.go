// Package server exposes the visit counter, the run endpoint and metrics
// over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"palette/internal/config"
	"palette/internal/domain"
)

const (
	maxBodySize     = 1 << 20 // 1MB
	visitCountKey   = "visit_count"
	greeting        = "Hello from Palette! 👋"
	notFoundMessage = "Not found. Please request the root path."
)

// RunRequest is the body of POST /v1/run.
type RunRequest struct {
	SessionID string            `json:"session_id"`
	Question  string            `json:"question"`
	AgentID   string            `json:"agent_id,omitempty"`
	Overrides map[string]string `json:"config,omitempty"` // runtime keys such as text2text_model or is_admin
}

// RunFunc routes one question and returns its envelope.
type RunFunc func(ctx context.Context, req RunRequest) (domain.ResponseEnvelope, error)

type visitResponse struct {
	Message    string `json:"message"`
	Version    string `json:"version"`
	VisitCount int64  `json:"visit_count"`
}

type Server struct {
	host    string
	port    int
	apiKey  string
	version string
	counter domain.Counter
	run     RunFunc
	metrics http.Handler
	logger  *slog.Logger
	server  *http.Server
}

type Config struct {
	Host    string
	Port    int
	APIKey  string // bearer token for /v1/run; empty disables the check
	Version string
	Counter domain.Counter
	Run     RunFunc      // nil disables /v1/run
	Metrics http.Handler // nil disables /metrics
	Logger  *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "0.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		host:    cfg.Host,
		port:    cfg.Port,
		apiKey:  cfg.APIKey,
		version: cfg.Version,
		counter: cfg.Counter,
		run:     cfg.Run,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Handler returns the routing mux. It is exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.run != nil {
		mux.HandleFunc("POST /v1/run", s.handleRun)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      15 * time.Minute, // tool agent and peer runs are long
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("HTTP server started", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// handleRoot increments the visit counter. Any path other than "/" is 404.
func (s *Server) handleRoot(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		rw.WriteHeader(http.StatusNotFound)
		io.WriteString(rw, notFoundMessage)
		return
	}
	if s.counter == nil {
		writeError(rw, http.StatusServiceUnavailable, "visit counter unavailable")
		return
	}

	n, err := s.counter.Increment(r.Context(), visitCountKey)
	if err != nil {
		s.logger.Error("visit counter increment failed", "err", err)
		writeError(rw, http.StatusInternalServerError, "could not update visit count")
		return
	}
	writeJSON(rw, http.StatusOK, visitResponse{Message: greeting, Version: s.version, VisitCount: n})
}

func (s *Server) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) == 1
}

func (s *Server) handleRun(rw http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && !s.authorized(r) {
		writeError(rw, http.StatusUnauthorized, "invalid API key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(rw, http.StatusBadRequest, "bad request")
		return
	}
	var req RunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(rw, http.StatusBadRequest, "question is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	env, err := s.run(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrMissing) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Error("run failed", "session", req.SessionID, "err", err)
		writeError(rw, status, fmt.Sprintf("run failed: %v", err))
		return
	}
	writeJSON(rw, http.StatusOK, env)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}
