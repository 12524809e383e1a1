package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"schoollib/internal/config"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestInitServesMetrics(t *testing.T) {
	tel, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "schoollib-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	counter, err := otel.Meter("schoollib/test").Int64Counter("schoollib.test.events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	body := scrape(t, tel.Handler())
	assert.Contains(t, body, "schoollib_test_events")
	assert.Contains(t, body, "go_goroutines")
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	tel, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "schoollib-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(Middleware(tel.HTTP))
	r.Get("/books/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	body := scrape(t, tel.Handler())
	assert.Contains(t, body, `schoollib_http_requests_total{method="GET",route="/books/{id}",status="404"} 2`)
	assert.NotContains(t, body, `route="/books/a"`)
}

func TestLoggerAddsTraceIDs(t *testing.T) {
	_, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "schoollib-test"})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "debug", "json")
	require.NoError(t, err)

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "inside span")
	span.End()
	assert.Contains(t, buf.String(), `"trace_id":"`+span.SpanContext().TraceID().String()+`"`)

	buf.Reset()
	logger.Info("outside span")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestNewLoggerRejectsBadConfig(t *testing.T) {
	_, err := NewLogger(io.Discard, "loud", "json")
	assert.Error(t, err)
	_, err = NewLogger(io.Discard, "info", "xml")
	assert.Error(t, err)

	logger, err := NewLogger(io.Discard, "", "text")
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), 0))
}
