package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ducchat/ducchat/telemetry"
)

// ErrProxyUpstreamUnreachable marks a dev proxy request whose upstream
// could not be reached. It surfaces to the requesting client as a 502 and
// never affects other subscribers.
var ErrProxyUpstreamUnreachable = errors.New("proxy upstream unreachable")

// devProxy forwards non-API requests to an external dev server (the Vite
// instance serving the overlay UI with hot reload). The target can be set
// and cleared at runtime; with no target the proxy is inactive.
type devProxy struct {
	mu     sync.Mutex
	target *url.URL
	client *http.Client
}

func newDevProxy() *devProxy {
	return &devProxy{client: &http.Client{Timeout: 30 * time.Second}}
}

// SetTarget updates the forwarding target. Empty clears it. A malformed
// URL is rejected.
func (p *devProxy) SetTarget(raw string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if raw == "" {
		p.target = nil
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid proxy target %q", raw)
	}
	p.target = u
	return nil
}

func (p *devProxy) Target() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

func (p *devProxy) Active() bool { return p.Target() != nil }

// ServeHTTP re-issues the request against the target and streams the
// response back verbatim.
func (p *devProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := p.Target()
	if target == nil {
		http.NotFound(w, r)
		return
	}

	if r.Header.Get("Upgrade") != "" {
		p.forwardUpgrade(w, r, target)
		return
	}

	outURL := *target
	outURL.Path = r.URL.Path
	outURL.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, outURL.String(), r.Body)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	req.Header.Set("User-Agent", "DucChat/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		recordProxyError()
		slog.Warn("dev proxy upstream unreachable", slog.String("url", outURL.String()), slog.Any("err", err))
		http.Error(w, ErrProxyUpstreamUnreachable.Error(), http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// forwardUpgrade hands a WebSocket (HMR) upgrade through to the target by
// hijacking the client connection, replaying the raw request, and piping
// bytes in both directions until either side closes.
func (p *devProxy) forwardUpgrade(w http.ResponseWriter, r *http.Request, target *url.URL) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "upgrade not supported", http.StatusInternalServerError)
		return
	}

	upstream, err := net.DialTimeout("tcp", hostPort(target), 10*time.Second)
	if err != nil {
		recordProxyError()
		slog.Warn("dev proxy upgrade dial failed", slog.Any("err", err))
		http.Error(w, ErrProxyUpstreamUnreachable.Error(), http.StatusBadGateway)
		return
	}

	client, clientBuf, err := hj.Hijack()
	if err != nil {
		_ = upstream.Close()
		http.Error(w, "hijack failed", http.StatusInternalServerError)
		return
	}

	var raw strings.Builder
	fmt.Fprintf(&raw, "%s %s HTTP/1.1\r\n", r.Method, r.URL.RequestURI())
	fmt.Fprintf(&raw, "Host: %s\r\n", target.Host)
	for k, vals := range r.Header {
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vals {
			fmt.Fprintf(&raw, "%s: %s\r\n", k, v)
		}
	}
	raw.WriteString("\r\n")
	if _, err := upstream.Write([]byte(raw.String())); err != nil {
		_ = upstream.Close()
		_ = client.Close()
		return
	}

	go func() {
		defer func() { _ = upstream.Close() }()
		defer func() { _ = client.Close() }()
		_, _ = io.Copy(upstream, clientBuf)
	}()
	go func() {
		defer func() { _ = upstream.Close() }()
		defer func() { _ = client.Close() }()
		_, _ = io.Copy(client, upstream)
	}()
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}

func recordProxyError() {
	if telemetry.ProxyErrors != nil {
		telemetry.ProxyErrors.Inc()
	}
}
