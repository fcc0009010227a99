// Package api exposes the task and queue operations over HTTP. Responses use
// a uniform envelope; task events stream over server-sent events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"subgen/internal/config"
	"subgen/internal/logging"
	"subgen/internal/progress"
	"subgen/internal/registry"
)

// Controller is the scheduler surface the API drives.
type Controller interface {
	Submit(ctx context.Context, taskID string) error
	StartQueue(ctx context.Context) int
	PauseTask(taskID string) error
	ResumeTask(ctx context.Context, taskID string) error
	CancelTask(ctx context.Context, taskID string) error
	PauseQueue()
	ResumeQueue(ctx context.Context)
	CancelQueue(ctx context.Context) error
	RunningCount() int
	WaitingCount() int
}

// KeyChecker verifies provider credentials.
type KeyChecker interface {
	CheckAPIKey(ctx context.Context) error
}

// Server is the HTTP API front end.
type Server struct {
	cfg        *config.Config
	registry   *registry.Registry
	controller Controller
	bus        *progress.Bus
	keys       KeyChecker
	logger     *slog.Logger

	listener net.Listener
	server   *http.Server
}

// NewServer wires the API over its collaborators.
func NewServer(cfg *config.Config, reg *registry.Registry, controller Controller, bus *progress.Bus, keys KeyChecker, logger *slog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		registry:   reg,
		controller: controller,
		bus:        bus,
		keys:       keys,
		logger:     logging.NewComponentLogger(logger, "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/check-api-key", s.handleCheckAPIKey)

	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("POST /api/tasks/batch", s.handleCreateBatch)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("PUT /api/tasks/{id}/subtitles", s.handleUpdateSubtitles)
	mux.HandleFunc("GET /api/tasks/{id}/export", s.handleExport)
	mux.HandleFunc("GET /api/tasks/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /api/tasks/{id}/start", s.handleStartTask)
	mux.HandleFunc("POST /api/tasks/{id}/pause", s.handlePauseTask)
	mux.HandleFunc("POST /api/tasks/{id}/resume", s.handleResumeTask)
	mux.HandleFunc("POST /api/tasks/{id}/cancel", s.handleCancelTask)
	mux.HandleFunc("POST /api/tasks/{id}/retry", s.handleRetryTask)

	mux.HandleFunc("GET /api/queue/status", s.handleQueueStatus)
	mux.HandleFunc("POST /api/queue/start", s.handleQueueStart)
	mux.HandleFunc("POST /api/queue/pause", s.handleQueuePause)
	mux.HandleFunc("POST /api/queue/resume", s.handleQueueResume)
	mux.HandleFunc("POST /api/queue/cancel", s.handleQueueCancel)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving on the configured bind address. Shutdown follows the
// context.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return errors.New("api bind address not configured")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		s.logger.Error("encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: message})
}

func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	if errors.Is(err, registry.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
