// Package health serves the ops endpoints: liveness, a bot state snapshot and
// per-user session views.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aegion/docbot/pkg/bot"
	"github.com/aegion/docbot/pkg/logger"
)

// StatusSource reports the conversation state.
type StatusSource interface {
	Status() bot.Status
	SessionStatus(userID string) (bot.SessionStatus, bool)
}

// ChannelSource reports which gateways are running.
type ChannelSource interface {
	Status() map[string]bool
}

type stateResponse struct {
	bot.Status
	Channels map[string]bool `json:"channels"`
	Uptime   string          `json:"uptime"`
}

// NewRouter builds the ops router. channels may be nil.
func NewRouter(status StatusSource, channels ChannelSource) http.Handler {
	started := time.Now()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
		resp := stateResponse{
			Status: status.Status(),
			Uptime: time.Since(started).Round(time.Second).String(),
		}
		if channels != nil {
			resp.Channels = channels.Status()
		}
		writeJSON(w, resp)
	})

	r.Get("/sessions/{userID}", func(w http.ResponseWriter, req *http.Request) {
		st, ok := status.SessionStatus(chi.URLParam(req, "userID"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		writeJSON(w, st)
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("health", "Failed to encode response", map[string]any{
			"error": err.Error(),
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.DebugCF("health", "Request served", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

// Server runs the ops router on its own listener.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start listens in the background. Listener errors are logged.
func (s *Server) Start() {
	logger.InfoCF("health", "Ops server listening", map[string]any{
		"addr": s.srv.Addr,
	})
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "Ops server failed", map[string]any{
				"error": err.Error(),
			})
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
