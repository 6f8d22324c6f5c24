// logging.go — журнал HTTP-запросов: одна запись на запрос после ответа,
// с владельцем, если запрос прошёл аутентификацию.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// requestLogKey — ключ контекста для requestLog.
type requestLogKey struct{}

// requestLog — поля записи журнала, известные только внутренним обработчикам.
// Заполняется в той же горутине, что и запрос.
type requestLog struct {
	owner string
}

// noteOwner запоминает владельца для журнала запроса, если журнал ведётся.
func noteOwner(ctx context.Context, owner string) {
	if rl, ok := ctx.Value(requestLogKey{}).(*requestLog); ok {
		rl.owner = owner
	}
}

// statusRecorder запоминает статус и объём ответа.
// Нулевой status означает, что заголовки ещё не отправлены.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RequestLogger возвращает middleware журнала запросов. Уровень записи:
// INFO для 1xx-3xx, WARN для 4xx, ERROR для 5xx. Для маршрутов chi
// пишется шаблон маршрута, для аутентифицированных запросов — владелец.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			rl := &requestLog{}
			ctx := context.WithValue(r.Context(), requestLogKey{}, rl)

			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.code()
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("request_id", chimw.GetReqID(ctx)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if rctx := chi.RouteContext(ctx); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, slog.String("route", pattern))
				}
			}
			if rl.owner != "" {
				attrs = append(attrs, slog.String("owner", rl.owner))
			}
			logger.LogAttrs(ctx, levelForStatus(status), "HTTP запрос", attrs...)
		})
	}
}
