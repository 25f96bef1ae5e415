// Package server exposes the run pipeline over HTTP: runs are triggered with
// a POST and observed over a websocket that serializes the run's event
// sequence as JSON frames.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/FranksOps/scout/internal/run"
)

// Server is the transport collaborator. It owns no run state beyond the
// manager handoff; event ordering and delivery semantics come from the bus.
type Server struct {
	manager  *run.Manager
	logger   *slog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New assembles a Server around a run manager.
func New(manager *run.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs", s.handleStartRun)
	mux.HandleFunc("GET /runs/{id}/events", s.handleEvents)
	mux.HandleFunc("DELETE /runs/{id}", s.handleCancel)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start begins serving on addr. It blocks until the listener fails or Stop is
// called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server listening", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type startRunRequest struct {
	Topic string `json:"topic"`
}

type startRunResponse struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	// The run outlives this request; it is bounded by its own cancellation
	// signal, not by the trigger's connection.
	h, err := s.manager.StartRun(context.Background(), req.Topic)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("run started", "run", h.ID.String(), "topic", req.Topic)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(startRunResponse{ID: h.ID.String(), Topic: h.Topic})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	h, err := s.manager.Attach(id)
	switch {
	case errors.Is(err, run.ErrUnknownRun):
		s.writeError(w, http.StatusNotFound, "unknown run")
		return
	case errors.Is(err, run.ErrAlreadyAttached):
		s.writeError(w, http.StatusConflict, "run already has an observer")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade failed; drain so the run can finish, then dispose.
		go s.drain(h)
		return
	}
	defer conn.Close()

	s.stream(conn, h)
}

// stream forwards events to the websocket until the terminal event. A write
// failure means the client is gone; the server keeps draining on its behalf so
// producers blocked on backpressure can finish the run.
func (s *Server) stream(conn *websocket.Conn, h *run.Handle) {
	defer s.manager.Release(h.ID)

	clientGone := false
	for ev := range h.Events() {
		if clientGone {
			continue
		}
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Warn("observer disconnected, draining run", "run", h.ID.String(), "err", err)
			clientGone = true
		}
	}

	if !clientGone {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}

// drain consumes and discards a run's events so it can terminate without an
// observer.
func (s *Server) drain(h *run.Handle) {
	defer s.manager.Release(h.ID)
	for range h.Events() {
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	if err := s.manager.Cancel(id); err != nil {
		s.writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "live_runs": s.manager.Live()})
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
