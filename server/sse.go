package server

import (
	"net/http"
	"time"
)

// defaultPingInterval keeps intermediaries (OBS browser source, reverse
// proxies) from timing out an otherwise quiet stream.
const defaultPingInterval = 25 * time.Second

// HandleStream is the SSE endpoint overlays subscribe to. Every subscriber
// immediately receives the current status and config, then every broadcast
// until it disconnects or falls too far behind.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("\n"))
	flusher.Flush()

	sub := h.hub.subscribe()
	defer h.hub.unsubscribe(sub)

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.ch:
			if !open {
				// Evicted by the hub.
				return
			}
			if _, err := w.Write([]byte("event: " + ev.name + "\n")); err != nil {
				return
			}
			if _, err := w.Write(append(append([]byte("data: "), ev.data...), '\n', '\n')); err != nil {
				return
			}
			flusher.Flush()
		case <-ping.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
