package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ducchat/ducchat/telemetry"
)

// portFallbackRange is how many ports above the preferred one are tried
// before falling back to an ephemeral port. A stable port matters because
// OBS browser sources embed the URL.
const portFallbackRange = 4

// NewMux returns the HTTP handler with all routes. Non-API paths fall
// through to the dev proxy or the static overlay.
func NewMux(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/health", h.HandleHealth)
	mux.HandleFunc("/api/config", h.HandleConfig)
	mux.HandleFunc("/api/stream", h.HandleStream)
	mux.HandleFunc("/api/channel", h.HandleChannel)
	mux.HandleFunc("/api/pseudos", h.HandlePseudos)

	mux.HandleFunc("/", h.handleFallthrough)

	// Correlation ID injector plus a tracing span per request.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
}

// statusRecorder wraps ResponseWriter to capture the status code while
// passing Flush and Hijack through for SSE and upgrade proxying.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return hj.Hijack()
}

// Listen binds the first available port: the preferred one, then the next
// four above it, then an ephemeral port.
func Listen(host string, preferred int) (net.Listener, error) {
	candidates := make([]int, 0, portFallbackRange+2)
	for p := preferred; p <= preferred+portFallbackRange; p++ {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, 0)

	var lastErr error
	for _, p := range candidates {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			lastErr = err
			continue
		}
		if p != preferred {
			slog.Warn("preferred port unavailable", slog.Int("preferred", preferred), slog.Int("bound", ln.Addr().(*net.TCPAddr).Port))
		}
		return ln, nil
	}
	return nil, fmt.Errorf("no listen port available near %d: %w", preferred, lastErr)
}

// Server is the running HTTP server bound to its listener.
type Server struct {
	httpSrv *http.Server
	ln      net.Listener
	host    string
}

// NewServer wraps the handler with timeouts appropriate for long-lived SSE
// streams: no write timeout, header reads bounded.
func NewServer(host string, ln net.Listener, handler http.Handler) *Server {
	return &Server{
		httpSrv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			// WriteTimeout stays zero: /api/stream connections are open-ended.
		},
		ln:   ln,
		host: host,
	}
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// URL is the server base URL.
func (s *Server) URL() string {
	return "http://" + net.JoinHostPort(s.host, strconv.Itoa(s.Port())) + "/"
}

// OverlayURL is the URL OBS browser sources point at.
func (s *Server) OverlayURL() string {
	return strings.TrimSuffix(s.URL(), "/") + "/?overlay=1#/"
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", slog.Any("err", err))
		_ = s.httpSrv.Close()
	}
	return <-errc
}
