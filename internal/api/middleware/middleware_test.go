package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestRouter(logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware())
	r.Use(RequestLogger(logger))
	r.Get("/api/v1/patients/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	router := newTestRouter(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/patients/{id}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"123", "456"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+id, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("ожидалось 2 запроса с шаблоном маршрута, получено %v", got)
	}
}

func TestMetricsMiddleware_Unmatched(t *testing.T) {
	router := newTestRouter(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/1", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("ожидался 1 запрос с лейблом unmatched, получено %v", got)
	}
}

func TestRequestLogger_HidesDocumentNumber(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	router := newTestRouter(logger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients/1032456789", nil))

	out := buf.String()
	if strings.Contains(out, "1032456789") {
		t.Errorf("номер документа попал в лог: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status=404") {
		t.Errorf("ожидалась запись WARN со статусом 404: %s", out)
	}
}

func TestRequestLogger_ProbesAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	router := newTestRouter(logger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if out := buf.String(); !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "bytes=2") {
		t.Errorf("ожидалась запись DEBUG с размером ответа: %s", out)
	}
}
