package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/reprompt/internal/adapters/metrics"
	"github.com/longregen/reprompt/internal/ports"
)

type captured struct {
	level   string
	message string
	fields  map[string]any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []captured
}

func (l *captureLogger) add(level, msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, captured{level: level, message: msg, fields: fields})
}

func (l *captureLogger) Info(msg string, fields map[string]any)  { l.add("info", msg, fields) }
func (l *captureLogger) Warn(msg string, fields map[string]any)  { l.add("warn", msg, fields) }
func (l *captureLogger) Error(msg string, fields map[string]any) { l.add("error", msg, fields) }
func (l *captureLogger) With(map[string]any) ports.Logger        { return l }
func (l *captureLogger) Timer(string) ports.Timer                { return nopTimer{} }

type nopTimer struct{}

func (nopTimer) Stop(map[string]any) time.Duration { return 0 }

func TestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success", http.StatusOK, "info"},
		{"client error", http.StatusNotFound, "warn"},
		{"server error", http.StatusInternalServerError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &captureLogger{}
			handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/searches", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			require.Len(t, logger.entries, 1)
			entry := logger.entries[0]
			assert.Equal(t, tt.level, entry.level)
			assert.Equal(t, tt.status, entry.fields["status"])
			assert.Equal(t, "/api/v1/searches", entry.fields["path"])
			assert.Equal(t, 4, entry.fields["bytes"])
		})
	}
}

func TestLogger_ImplicitOK(t *testing.T) {
	logger := &captureLogger{}
	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Len(t, logger.entries, 1)
	assert.Equal(t, http.StatusOK, logger.entries[0].fields["status"])
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/api/v1/searches/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/searches/{id}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"sr_a", "sr_b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/searches/"+id, nil))
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}
