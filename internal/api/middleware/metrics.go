// metrics.go — Prometheus HTTP метрики cloud-drop.
// Бизнес-метрики (cd_uploads_total и др.) регистрируются в пакете service.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cd_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cd_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := strconv.Itoa(rec.code())
			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

const filesPrefix = "/api/files/"

// normalizePath заменяет идентификатор файла в пути на {id}, чтобы
// не раздувать кардинальность метрик.
// /api/files/a1b2c3d4-e5f6-7890-abcd-ef1234567890 → /api/files/{id}
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/files", "/api/files/upload", "/api/files/upload-multiple":
		return path
	}
	if rest, ok := strings.CutPrefix(path, filesPrefix); ok && !strings.Contains(rest, "/") {
		if _, err := uuid.Parse(rest); err == nil {
			return filesPrefix + "{id}"
		}
	}
	return "other"
}
