package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestSpanRecordsHTTPStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	handler, _, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/channel", strings.NewReader(`{"channel":"bad name!"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	spans := recorder.Ended()
	if len(spans) == 0 {
		t.Fatal("no request span recorded")
	}
	span := spans[len(spans)-1]
	if span.Status().Code != codes.Error {
		t.Errorf("span status = %v, want error for a 4xx response", span.Status().Code)
	}
	foundCode := false
	for _, attr := range span.Attributes() {
		if attr.Key == "http.status_code" && attr.Value.AsInt64() == http.StatusBadRequest {
			foundCode = true
		}
	}
	if !foundCode {
		t.Errorf("span attributes missing http.status_code=400: %v", span.Attributes())
	}

	// A 2xx response leaves the span unset (not an error).
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	spans = recorder.Ended()
	span = spans[len(spans)-1]
	if span.Status().Code == codes.Error {
		t.Errorf("span status = error for a 200 response")
	}
}
