// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// cloud-drop мониторит:
//   - blob-хранилище — HTTP checker к health endpoint (critical)
//   - JWKS провайдера идентификации — HTTP checker (critical)
//   - PostgreSQL — SQL checker через существующий pgxpool (critical)
//
// Любая из зависимостей может отсутствовать (memory blob, anonymous auth, MongoDB).
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNoDependencies — не задано ни одной зависимости для мониторинга.
var ErrNoDependencies = errors.New("нет зависимостей для мониторинга")

// DephealthConfig — зависимости, подлежащие мониторингу.
// Пустые поля означают отсутствие соответствующей зависимости.
type DephealthConfig struct {
	ServiceID     string
	Group         string
	CheckInterval time.Duration

	// BlobURL / BlobHealthPath — S3-совместимое хранилище
	BlobURL        string
	BlobHealthPath string

	// JWKSURL — JWKS endpoint провайдера идентификации
	JWKSURL string

	// PostgresDB — *sql.DB из pgxpool через stdlib.OpenDBFromPool()
	PostgresDB *sql.DB
	// PostgresURL — URL подключения (для лейблов, не для подключения)
	PostgresURL string
}

// Empty сообщает, что мониторить нечего.
func (c DephealthConfig) Empty() bool {
	return c.BlobURL == "" && c.JWKSURL == "" && c.PostgresDB == nil
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	cfg DephealthConfig,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	if cfg.Empty() {
		return nil, ErrNoDependencies
	}

	opts := []dephealth.Option{dephealth.WithLogger(logger)}

	if cfg.BlobURL != "" {
		blobOpts := []dephealth.DependencyOption{
			dephealth.FromURL(cfg.BlobURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		}
		if cfg.BlobHealthPath != "" {
			blobOpts = append(blobOpts, dephealth.WithHTTPHealthPath(cfg.BlobHealthPath))
		}
		opts = append(opts, dephealth.HTTP("blob-store", blobOpts...))
	}

	if cfg.JWKSURL != "" {
		jwksOpts := []dephealth.DependencyOption{
			dephealth.FromURL(cfg.JWKSURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		}
		if parsed, err := url.Parse(cfg.JWKSURL); err == nil && parsed.Path != "" {
			jwksOpts = append(jwksOpts, dephealth.WithHTTPHealthPath(parsed.Path))
		}
		opts = append(opts, dephealth.HTTP("identity-jwks", jwksOpts...))
	}

	if cfg.PostgresDB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.PostgresDB)),
			dephealth.FromURL(cfg.PostgresURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		))
	}

	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
