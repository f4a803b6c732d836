package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProxyForwardsRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "DucChat/1.0" {
			t.Errorf("upstream saw UA %q", got)
		}
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		_, _ = w.Write([]byte("// " + r.URL.Path + "?" + r.URL.RawQuery))
	}))
	defer upstream.Close()

	p := newDevProxy()
	if err := p.SetTarget(upstream.URL); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/src/main.ts?import", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "// /src/main.ts?import" {
		t.Errorf("body = %q", body)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/javascript; charset=utf-8" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("cache control = %q", got)
	}
}

func TestProxyPassesUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	p := newDevProxy()
	if err := p.SetTarget(upstream.URL); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want upstream 404 passed through", rec.Code)
	}
}

func TestProxyUnreachableUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := upstream.URL
	upstream.Close()

	p := newDevProxy()
	if err := p.SetTarget(target); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestProxyTargetValidation(t *testing.T) {
	p := newDevProxy()
	if err := p.SetTarget("not a url"); err == nil {
		t.Error("expected error for malformed target")
	}
	if err := p.SetTarget("http://127.0.0.1:5173"); err != nil {
		t.Fatalf("valid target rejected: %v", err)
	}
	if !p.Active() {
		t.Error("proxy should be active")
	}
	if err := p.SetTarget(""); err != nil {
		t.Fatalf("clearing target: %v", err)
	}
	if p.Active() {
		t.Error("proxy should be inactive after clearing the target")
	}
}
