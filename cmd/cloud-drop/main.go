// Точка входа cloud-drop — сервис загрузки файлов.
// Загружает конфигурацию, подключает blob-хранилище (S3/MinIO),
// хранилище метаданных (MongoDB или PostgreSQL) и кэш, собирает
// сервисный слой и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/AdityaJha012/cloud-drop/internal/api/handlers"
	"github.com/AdityaJha012/cloud-drop/internal/config"
	"github.com/AdityaJha012/cloud-drop/internal/server"
	"github.com/AdityaJha012/cloud-drop/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("cloud-drop запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("blob_backend", cfg.BlobBackend),
		slog.String("metadata_backend", cfg.MetadataBackend),
		slog.String("cache_backend", cfg.CacheBackend),
		slog.String("auth_mode", cfg.AuthMode),
	)

	if os.Getenv("CD_DEPHEALTH_GROUP") == "" {
		logger.Warn("CD_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Сервис завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("cloud-drop остановлен")
}

// run собирает зависимости и блокируется до остановки HTTP-сервера.
// Ресурсы освобождаются через defer в обратном порядке.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	checks := make(map[string]handlers.ReadinessChecker)
	depCfg := service.DephealthConfig{
		ServiceID:     "cloud-drop",
		Group:         cfg.DephealthGroup,
		CheckInterval: cfg.DephealthCheckInterval,
	}

	// 3. Blob-хранилище
	blobs, err := setupBlobStore(ctx, cfg, logger, checks, &depCfg)
	if err != nil {
		return err
	}

	// 4. Хранилище метаданных
	repo, closeRepo, err := setupRepository(ctx, cfg, logger, checks, &depCfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	// 5. Кэш метаданных
	cache, closeCache := setupCache(ctx, cfg, logger, checks)
	defer closeCache()

	// 6. Сервисы
	access := service.NewAccessGranter(blobs, cfg.URLTTL)
	uploadSvc := service.NewUploadService(cfg, blobs, repo, access, logger)
	querySvc := service.NewQueryService(repo, cache, access, cfg.OwnerScoping, logger)
	deleteSvc := service.NewDeleteService(blobs, repo, cache, cfg.OwnerScoping, logger)

	// 7. Аутентификация
	auth, err := setupAuth(cfg, logger, &depCfg)
	if err != nil {
		return err
	}

	// 8. topologymetrics — мониторинг зависимостей
	if stop := startDephealth(ctx, depCfg, logger); stop != nil {
		defer stop()
	}

	// 9. HTTP
	files := handlers.NewFilesHandler(uploadSvc, querySvc, deleteSvc, handlers.Limits{
		MaxFileSize: cfg.MaxFileSize,
		MaxFiles:    cfg.MaxFiles,
	}, logger)
	health := handlers.NewHealthHandler(checks)
	router := server.NewRouter(logger, files, health, auth)

	// 10. Запуск сервера (блокирующий вызов с graceful shutdown)
	return server.New(cfg, logger, router).Run()
}
