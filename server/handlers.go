package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ducchat/ducchat/chat"
	"github.com/ducchat/ducchat/settings"
)

// SessionController is the control surface the API drives. *chat.Session
// implements it.
type SessionController interface {
	Connect(ctx context.Context, input string) (string, error)
	Disconnect() error
	Channel() string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	hub      *Hub
	session  SessionController
	settings *settings.Store
	proxy    *devProxy
	static   *staticHandler

	// pingInterval paces SSE keep-alive comments; tests shorten it.
	pingInterval time.Duration
}

// NewHandlers wires the API against its collaborators. uiRoot may be empty
// when the UI is proxied instead of served from disk.
func NewHandlers(hub *Hub, session SessionController, store *settings.Store, uiRoot string) *Handlers {
	return &Handlers{
		hub:          hub,
		session:      session,
		settings:     store,
		proxy:        newDevProxy(),
		static:       &staticHandler{root: uiRoot},
		pingInterval: defaultPingInterval,
	}
}

// SetProxyTarget enables or disables dev proxy mode for non-API requests.
func (h *Handlers) SetProxyTarget(raw string) error {
	return h.proxy.SetTarget(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleHealth reports liveness plus the retained hub state.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status, cfg, clients := h.hub.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"sseClients": clients,
		"lastStatus": status,
		"lastConfig": cfg,
	})
}

// HandleConfig returns the current status and pseudo config for overlay
// consumers that poll instead of streaming.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status, cfg, _ := h.hub.Snapshot()
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"status": status,
		"config": cfg,
	})
}

// HandleChannel serves the channel control surface: read the current
// channel, connect to a new one, or disconnect.
func (h *Handlers) HandleChannel(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel": h.session.Channel()})

	case http.MethodPost:
		var body struct {
			Channel string `json:"channel"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid JSON body"})
			return
		}
		channel, err := h.session.Connect(r.Context(), body.Channel)
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, chat.ErrInvalidChannelName) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if err := h.settings.SetChannel(channel); err != nil {
			slog.Warn("persist channel failed", slog.Any("err", err))
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel": channel})

	case http.MethodDelete:
		if err := h.session.Disconnect(); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if err := h.settings.SetChannel(""); err != nil {
			slog.Warn("clear stored channel failed", slog.Any("err", err))
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandlePseudos reads or replaces the pseudo display config. Updates are
// normalized, persisted, and broadcast to every subscriber. When the write
// fails the normalized config still becomes the live in-memory state; the
// caller gets the error and can retry the persist.
func (h *Handlers) HandlePseudos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": h.settings.PseudoConfig()})

	case http.MethodPut, http.MethodPost:
		var cfg settings.PseudoConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid JSON body"})
			return
		}
		normalized, err := h.settings.SetPseudoConfig(cfg)
		h.hub.PublishConfig(normalized)
		if err != nil {
			slog.Error("persist pseudo config failed", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error(), "config": normalized})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": normalized})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleFallthrough serves everything outside /api: the dev proxy when a
// target is set, the built overlay otherwise.
func (h *Handlers) handleFallthrough(w http.ResponseWriter, r *http.Request) {
	if h.proxy.Active() {
		h.proxy.ServeHTTP(w, r)
		return
	}
	h.static.ServeHTTP(w, r)
}
