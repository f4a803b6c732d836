// Package server exposes the local HTTP surface: the SSE broadcast hub,
// overlay static serving, the dev proxy, and the control API.
package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ducchat/ducchat/chat"
	"github.com/ducchat/ducchat/message"
	"github.com/ducchat/ducchat/settings"
	"github.com/ducchat/ducchat/telemetry"
)

// subscriberBuffer is the per-subscriber queue depth. A subscriber that
// falls this far behind is evicted rather than allowed to stall the
// broadcast.
const subscriberBuffer = 256

// event is one framed SSE event, payload pre-encoded so a broadcast
// marshals exactly once regardless of subscriber count.
type event struct {
	name string
	data []byte
}

type subscriber struct {
	ch chan event
}

// Hub fans events out to every registered subscriber. It retains the last
// status and config so late joiners are seeded with current state before
// any subsequent broadcast, and implements chat.Events so the session can
// publish directly into it.
type Hub struct {
	mu         sync.Mutex
	subs       map[*subscriber]struct{}
	lastStatus chat.Status
	lastConfig settings.PseudoConfig
}

func NewHub() *Hub {
	return &Hub{
		subs:       make(map[*subscriber]struct{}),
		lastStatus: chat.Status{State: "disconnected", Channel: ""},
		lastConfig: settings.PseudoConfig{Blocked: []string{}, Renames: map[string]string{}},
	}
}

// subscribe registers a new subscriber and enqueues the status and config
// snapshot under the same lock as registration, so no broadcast can slip
// between the snapshot and the first live event.
func (h *Hub) subscribe() *subscriber {
	sub := &subscriber{ch: make(chan event, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	sub.ch <- mustEvent("status", h.lastStatus)
	sub.ch <- mustEvent("config", h.lastConfig)
	h.subs[sub] = struct{}{}
	telemetry.SetSSEClients(len(h.subs))
	slog.Info("sse client connected", slog.Int("clients", len(h.subs)))
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
	telemetry.SetSSEClients(len(h.subs))
	slog.Info("sse client disconnected", slog.Int("clients", len(h.subs)))
}

// PublishStatus implements chat.Events.
func (h *Hub) PublishStatus(st chat.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastStatus = st
	h.broadcastLocked("status", st)
}

// PublishMessage implements chat.Events. Messages are not retained; a
// subscriber only ever sees messages emitted after it registered.
func (h *Hub) PublishMessage(m message.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked("message", m)
}

// PublishConfig broadcasts a pseudo config update and retains it for late
// joiners.
func (h *Hub) PublishConfig(cfg settings.PseudoConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastConfig = cfg
	h.broadcastLocked("config", cfg)
}

// SeedConfig sets the retained config without broadcasting, for startup
// before any subscriber exists.
func (h *Hub) SeedConfig(cfg settings.PseudoConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastConfig = cfg
}

// Snapshot returns the retained status and config and the subscriber count.
func (h *Hub) Snapshot() (chat.Status, settings.PseudoConfig, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastStatus, h.lastConfig, len(h.subs)
}

func (h *Hub) broadcastLocked(name string, data any) {
	ev, err := newEvent(name, data)
	if err != nil {
		slog.Error("encode broadcast event", slog.String("event", name), slog.Any("err", err))
		return
	}
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			// Queue full: the subscriber is too slow, drop it instead of
			// blocking everyone else.
			delete(h.subs, sub)
			close(sub.ch)
			if telemetry.SubscribersEvicted != nil {
				telemetry.SubscribersEvicted.Inc()
			}
			slog.Warn("sse client evicted", slog.Int("clients", len(h.subs)))
		}
	}
	telemetry.SetSSEClients(len(h.subs))
}

func newEvent(name string, data any) (event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return event{}, err
	}
	return event{name: name, data: payload}, nil
}

// mustEvent is for the snapshot types, which always marshal.
func mustEvent(name string, data any) event {
	ev, err := newEvent(name, data)
	if err != nil {
		panic(err)
	}
	return ev
}
