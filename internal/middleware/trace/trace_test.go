package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"financeflow/internal/log"
)

func newTestMiddleware(buf *bytes.Buffer) *Middleware {
	logger := log.New(log.Config{Level: slog.LevelDebug, Component: log.ComponentHTTP, Output: buf})
	return NewMiddleware(logger, func(*http.Request) string { return "192.0.2.1" })
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMiddleware(&buf)

	var seen string
	var ctxLogger *log.Logger
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		ctxLogger = log.FromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/summary", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a UUID: %v", seen, err)
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
	if ctxLogger == nil || ctxLogger.Component() != log.ComponentTrace {
		t.Errorf("context logger not set by middleware")
	}
	if !strings.Contains(buf.String(), "status_code=201") {
		t.Errorf("completion log missing status: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "request_id="+seen) {
		t.Errorf("log lines missing request id: %s", buf.String())
	}
}

func TestRequestIDFrom(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"caller id kept", "abc-123_x.y", true},
		{"empty", "", false},
		{"spaces", "abc 123", false},
		{"too long", strings.Repeat("a", 65), false},
		{"newline", "abc\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set(RequestIDHeader, tt.header)
			}
			got := RequestIDFrom(r)
			if tt.keep && got != tt.header {
				t.Errorf("got %q, want caller id %q", got, tt.header)
			}
			if !tt.keep && got == tt.header {
				t.Errorf("invalid caller id %q was kept", tt.header)
			}
		})
	}
}

func TestMetricsAverage(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMiddleware(&buf)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	if got := m.GetMetrics(); got.TotalRequests != 0 || got.AverageResponseTime != 0 {
		t.Fatalf("fresh metrics = %+v", got)
	}
	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if got := m.GetMetrics().TotalRequests; got != 3 {
		t.Errorf("TotalRequests = %d, want 3", got)
	}
}
