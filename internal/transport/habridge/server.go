// Package habridge exposes a minimal REST surface for home-automation
// conversation agents (Home Assistant, HomeKit, XBMC, automations). The
// response is always plain text; media degrades to placeholders.
package habridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/masterphooey/tater/internal/engine"
	"github.com/masterphooey/tater/pkg/content"
)

// agents are the transport tags the bridge accepts.
var agents = map[string]bool{
	"homeassistant": true,
	"homekit":       true,
	"xbmc":          true,
	"automation":    true,
}

// Server is the bridge listener.
type Server struct {
	Engine *engine.Engine
	Addr   string
	// DefaultAgent tags requests that don't name one.
	DefaultAgent string
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/converse", s.handleConverse)
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	slog.Info("home-automation bridge listening", "addr", s.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type converseRequest struct {
	Text    string `json:"text"`
	Agent   string `json:"agent,omitempty"`
	Session string `json:"session,omitempty"`
	Sender  string `json:"sender,omitempty"`
}

type converseResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleConverse(w http.ResponseWriter, r *http.Request) {
	var req converseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	agent := req.Agent
	if agent == "" {
		agent = s.DefaultAgent
	}
	if !agents[agent] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown agent"})
		return
	}
	session := req.Session
	if session == "" {
		session = "default"
	}
	sender := req.Sender
	if sender == "" {
		sender = agent
	}

	var parts []string
	send := func(_ context.Context, items []content.Item) error {
		for _, item := range items {
			parts = append(parts, item.Placeholder())
		}
		return nil
	}
	msg := engine.Incoming{
		Transport: agent,
		ChannelID: session,
		Sender:    sender,
		Mention:   sender,
		Content:   req.Text,
	}
	if err := s.Engine.Handle(r.Context(), msg, send); err != nil {
		slog.Error("converse handling failed", "agent", agent, "session", session, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, converseResponse{Text: strings.Join(parts, "\n")})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
