package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	apierrors "github.com/AdityaJha012/cloud-drop/internal/api/errors"
	"github.com/AdityaJha012/cloud-drop/internal/api/handlers"
	"github.com/AdityaJha012/cloud-drop/internal/api/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// denyAll — auth middleware, отклоняющий все запросы.
func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.Unauthorized(w, "нет токена")
	})
}

func newTestRouter(auth func(http.Handler) http.Handler) http.Handler {
	logger := testLogger()
	// Сервисы не нужны: проверяются маршруты, не доходящие до них.
	files := handlers.NewFilesHandler(nil, nil, nil, handlers.Limits{MaxFileSize: 1024, MaxFiles: 3}, logger)
	health := handlers.NewHealthHandler(nil)
	return NewRouter(logger, files, health, auth)
}

func TestRouter_PublicEndpointsBypassAuth(t *testing.T) {
	router := newTestRouter(denyAll)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: статус = %d, ожидался 200", path, rec.Code)
		}
	}
}

func TestRouter_APIRequiresAuth(t *testing.T) {
	router := newTestRouter(denyAll)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/files"},
		{http.MethodPost, "/api/files/upload"},
		{http.MethodPost, "/api/files/upload-multiple"},
		{http.MethodGet, "/api/files/0b7e6f0c-3c5f-4a43-9d8a-0f4b2b4a9c11"},
		{http.MethodDelete, "/api/files/0b7e6f0c-3c5f-4a43-9d8a-0f4b2b4a9c11"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: статус = %d, ожидался 401", tt.method, tt.path, rec.Code)
		}
	}
}

func TestRouter_RoutesReachHandlers(t *testing.T) {
	router := newTestRouter(middleware.Anonymous())

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"get invalid id", http.MethodGet, "/api/files/not-a-uuid", http.StatusBadRequest},
		{"delete invalid id", http.MethodDelete, "/api/files/not-a-uuid", http.StatusBadRequest},
		{"upload not multipart", http.MethodPost, "/api/files/upload", http.StatusBadRequest},
		{"list invalid limit", http.MethodGet, "/api/files?limit=x", http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/unknown", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/api/files/upload", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.want)
			}
		})
	}
}
