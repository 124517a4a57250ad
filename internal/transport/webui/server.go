// Package webui serves the HTTP API the web front end talks to: chat,
// history, plugin management, and media blob retrieval.
package webui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/masterphooey/tater/internal/engine"
	"github.com/masterphooey/tater/internal/history"
	"github.com/masterphooey/tater/internal/settings"
	"github.com/masterphooey/tater/internal/store"
	"github.com/masterphooey/tater/pkg/content"
	"github.com/masterphooey/tater/pkg/plugin"
)

const transportTag = "webui"

// Server exposes the web API.
type Server struct {
	Engine   *engine.Engine
	History  *history.Store
	Settings *settings.Settings
	Registry *plugin.Registry
	Store    store.Store
	Addr     string
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleHistoryWipe)
		r.Get("/plugins", s.handlePlugins)
		r.Post("/plugins/reload", s.handlePluginReload)
		r.Put("/plugins/{name}", s.handlePluginToggle)
		r.Get("/blobs/{key}", s.handleBlob)
	})
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
	slog.Info("webui API listening", "addr", s.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type chatRequest struct {
	Session string `json:"session"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

type itemJSON struct {
	Type     string `json:"type"` // "text" or the media kind
	Text     string `json:"text,omitempty"`
	Name     string `json:"name,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	BlobKey  string `json:"blob_key,omitempty"`
	// Bytes carries small payloads inline, base64-encoded, when no blob
	// key exists.
	Bytes string `json:"bytes,omitempty"`
}

type chatResponse struct {
	Items []itemJSON `json:"items"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Session == "" || req.Content == "" {
		httpError(w, http.StatusBadRequest, "session and content are required")
		return
	}
	if req.Sender == "" {
		req.Sender = "user"
	}

	var collected []content.Item
	send := func(_ context.Context, items []content.Item) error {
		collected = append(collected, items...)
		return nil
	}
	msg := engine.Incoming{
		Transport: transportTag,
		ChannelID: req.Session,
		Sender:    req.Sender,
		Mention:   req.Sender,
		Content:   req.Content,
	}
	if err := s.Engine.Handle(r.Context(), msg, send); err != nil {
		slog.Error("chat handling failed", "session", req.Session, "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := chatResponse{Items: make([]itemJSON, 0, len(collected))}
	for _, item := range collected {
		resp.Items = append(resp.Items, toItemJSON(r.Context(), s.Store, item))
	}
	writeJSON(w, http.StatusOK, resp)
}

// toItemJSON converts an item for the wire. Media payloads are parked in
// the blob store and referenced, so the JSON stays small.
func toItemJSON(ctx context.Context, blobs store.Store, item content.Item) itemJSON {
	if item.IsText() {
		return itemJSON{Type: "text", Text: item.Text}
	}
	out := itemJSON{
		Type:     string(item.Kind),
		Name:     item.Name,
		Mimetype: item.Mimetype,
		BlobKey:  item.BlobKey,
	}
	if out.BlobKey == "" && len(item.Bytes) > 0 {
		key, err := blobs.PutBlob(ctx, item.Bytes)
		if err != nil {
			slog.Warn("parking media payload failed, inlining", "name", item.Name, "error", err)
			out.Bytes = base64.StdEncoding.EncodeToString(item.Bytes)
		} else {
			out.BlobKey = key
		}
	}
	return out
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		httpError(w, http.StatusBadRequest, "session is required")
		return
	}
	entries, err := s.History.Read(r.Context(), history.Key(transportTag, session), 0)
	if err != nil {
		slog.Error("history read failed", "session", session, "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleHistoryWipe(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		httpError(w, http.StatusBadRequest, "session is required")
		return
	}
	if err := s.History.Clear(r.Context(), history.Key(transportTag, session)); err != nil {
		slog.Error("history wipe failed", "session", session, "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pluginJSON struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Enabled     bool     `json:"enabled"`
	Transports  []string `json:"transports"`
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	all := s.Registry.All()
	out := make([]pluginJSON, 0, len(all))
	for _, p := range all {
		transports := make([]string, 0, len(p.Handlers))
		for t := range p.Handlers {
			transports = append(transports, t)
		}
		sort.Strings(transports)
		out = append(out, pluginJSON{
			Name:        p.Name,
			Description: p.Description,
			Enabled:     s.Settings.PluginEnabled(r.Context(), p.Name),
			Transports:  transports,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": out})
}

// handlePluginReload re-runs the plugin source and swaps the registry
// snapshot, so new capabilities show up without a restart.
func (s *Server) handlePluginReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Registry.Reload(); err != nil {
		slog.Error("plugin reload failed", "error", err)
		httpError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	all := s.Registry.All()
	names := make([]string, 0, len(all))
	for _, p := range all {
		names = append(names, p.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": names})
}

func (s *Server) handlePluginToggle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.Registry.Get(name); !ok {
		httpError(w, http.StatusNotFound, "no such plugin")
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Settings.SetPluginEnabled(r.Context(), name, req.Enabled); err != nil {
		slog.Error("plugin toggle failed", "plugin", name, "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "enabled": req.Enabled})
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	data, err := s.Store.GetBlob(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "no such blob")
			return
		}
		slog.Error("blob read failed", "key", key, "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
