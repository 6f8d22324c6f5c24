// auth.go — JWT middleware: валидация токена внешнего identity-провайдера
// через JWKS и извлечение идентификатора владельца.
// Владелец берётся из настраиваемого claim (по умолчанию "id"), иначе из sub.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/AdityaJha012/cloud-drop/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyOwner — ключ идентификатора владельца в контексте запроса.
const ContextKeyOwner contextKey = "owner"

// DefaultOwnerClaim — claim с идентификатором пользователя.
const DefaultOwnerClaim = "id"

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks       keyfunc.Keyfunc
	ownerClaim string
	jwtLeeway  time.Duration
	logger     *slog.Logger
}

// JWTAuthConfig — параметры JWT middleware.
type JWTAuthConfig struct {
	// URL JWKS endpoint
	JWKSURL string
	// Claim с идентификатором владельца
	OwnerClaim string
	// Таймаут HTTP-клиента JWKS
	ClientTimeout time.Duration
	// Интервал обновления ключей
	RefreshInterval time.Duration
	// Допустимое отклонение часов
	JWTLeeway time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS из указанного URL.
func NewJWTAuth(authCfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	if authCfg.ClientTimeout <= 0 {
		authCfg.ClientTimeout = 10 * time.Second
	}
	if authCfg.RefreshInterval <= 0 {
		authCfg.RefreshInterval = 15 * time.Minute
	}

	// NoErrorReturnFirstHTTPReq: провайдер может быть ещё недоступен при старте.
	storage, err := jwkset.NewStorageFromHTTP(authCfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: authCfg.ClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           authCfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", authCfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, authCfg.OwnerClaim, authCfg.JWTLeeway, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, ownerClaim string, jwtLeeway time.Duration, logger *slog.Logger) *JWTAuth {
	if ownerClaim == "" {
		ownerClaim = DefaultOwnerClaim
	}
	return &JWTAuth{
		jwks:       kf,
		ownerClaim: ownerClaim,
		jwtLeeway:  jwtLeeway,
		logger:     logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, проверяет подпись (RS256) и exp,
// помещает идентификатор владельца в контекст запроса.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(r.Context()),
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			owner := ownerFromClaims(claims, j.ownerClaim)
			if owner == "" {
				apierrors.Unauthorized(w, "В токене отсутствует идентификатор пользователя")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithOwner(r.Context(), owner)))
		})
	}
}

// ownerFromClaims читает идентификатор владельца из claim, затем из sub.
// Числовые идентификаторы приводятся к строке.
func ownerFromClaims(claims jwt.MapClaims, claim string) string {
	switch v := claims[claim].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	sub, _ := claims.GetSubject()
	return sub
}

// Anonymous возвращает middleware без аутентификации: владелец не задаётся.
func Anonymous() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// ContextWithOwner возвращает контекст с идентификатором владельца
// и отмечает владельца в журнале запроса.
func ContextWithOwner(ctx context.Context, owner string) context.Context {
	noteOwner(ctx, owner)
	return context.WithValue(ctx, ContextKeyOwner, owner)
}

// OwnerFromContext извлекает идентификатор владельца из контекста.
// Возвращает пустую строку, если владелец не задан.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ContextKeyOwner).(string)
	return owner
}

// WithExclusions оборачивает middleware, пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без middleware.
func WithExclusions(mw func(http.Handler) http.Handler, excludePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}
