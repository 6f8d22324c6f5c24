// wiring.go — создание бэкендов по конфигурации.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/AdityaJha012/cloud-drop/internal/api/handlers"
	"github.com/AdityaJha012/cloud-drop/internal/api/middleware"
	"github.com/AdityaJha012/cloud-drop/internal/config"
	"github.com/AdityaJha012/cloud-drop/internal/database"
	"github.com/AdityaJha012/cloud-drop/internal/repository"
	"github.com/AdityaJha012/cloud-drop/internal/service"
	"github.com/AdityaJha012/cloud-drop/internal/storage/blob"
)

// startupTimeout — таймаут сетевых операций при старте.
const startupTimeout = 30 * time.Second

// setupBlobStore создаёт blob-хранилище. Для S3 bucket создаётся при отсутствии.
func setupBlobStore(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	checks map[string]handlers.ReadinessChecker,
	depCfg *service.DephealthConfig,
) (blob.Store, error) {
	if cfg.BlobBackend == config.BlobBackendMemory {
		logger.Warn("Используется in-memory blob-хранилище, данные не сохраняются между запусками")
		return blob.NewMemoryStore(), nil
	}

	store, err := blob.NewS3Store(blob.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		PathStyle: cfg.S3PathStyle,
	}, logger)
	if err != nil {
		return nil, err
	}

	ensureCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	if err := store.EnsureContainer(ensureCtx, cfg.S3Bucket); err != nil {
		return nil, err
	}
	logger.Info("S3-хранилище подключено",
		slog.String("endpoint", cfg.S3Endpoint),
		slog.String("bucket", cfg.S3Bucket),
	)

	checks["blob_store"] = blob.NewReadinessChecker(store, cfg.S3Bucket)
	depCfg.BlobURL = cfg.S3Endpoint
	depCfg.BlobHealthPath = cfg.S3HealthPath
	return store, nil
}

// setupRepository создаёт хранилище метаданных. Возвращённая функция
// освобождает соединения.
func setupRepository(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	checks map[string]handlers.ReadinessChecker,
	depCfg *service.DephealthConfig,
) (repository.FileRepository, func(), error) {
	switch cfg.MetadataBackend {
	case config.MetadataBackendPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, nil, err
		}

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}

		// Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт
		// через общий пул и обнаруживает его исчерпание.
		pgDB := stdlib.OpenDBFromPool(pool)
		depCfg.PostgresDB = pgDB
		depCfg.PostgresURL = cfg.DatabaseDSN()
		checks["metadata"] = database.NewReadinessChecker(pool)

		return repository.NewPostgresRepository(pool), func() {
			_ = pgDB.Close()
			pool.Close()
		}, nil

	case config.MetadataBackendMongo:
		client, err := database.ConnectMongo(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		db := client.Database(cfg.MongoDatabase)

		idxCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()
		if err := repository.EnsureIndexes(idxCtx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		checks["metadata"] = database.NewMongoReadinessChecker(client)

		return repository.NewMongoRepository(db), func() {
			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			if err := client.Disconnect(dctx); err != nil {
				logger.Warn("Ошибка отключения от MongoDB", slog.String("error", err.Error()))
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("неизвестный бэкенд метаданных: %s", cfg.MetadataBackend)
	}
}

// setupCache создаёт кэш метаданных. Недоступность Redis при старте
// не фатальна: кэш деградирует до промахов.
func setupCache(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	checks map[string]handlers.ReadinessChecker,
) (service.MetadataCache, func()) {
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis недоступен при старте, кэш работает в режиме промахов",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
		cache := service.NewRedisCache(client, cfg.CacheTTL, logger)
		checks["cache"] = cache
		return cache, func() { _ = client.Close() }

	case config.CacheBackendLRU:
		logger.Warn("LRU-кэш локален для экземпляра: удаление на других репликах его не очищает, " +
			"используйте только при одной реплике или CD_CACHE_BACKEND=redis")
		return service.NewLRUCache(cfg.CacheSize, cfg.CacheTTL), func() {}

	default:
		return service.NopCache{}, func() {}
	}
}

// setupAuth создаёт middleware аутентификации.
func setupAuth(
	cfg *config.Config,
	logger *slog.Logger,
	depCfg *service.DephealthConfig,
) (func(http.Handler) http.Handler, error) {
	if cfg.AuthMode == config.AuthModeAnonymous {
		logger.Warn("Аутентификация отключена, owner scoping выключен")
		return middleware.Anonymous(), nil
	}

	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:    cfg.JWKSURL,
		OwnerClaim: cfg.JWTOwnerClaim,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWKSURL),
		slog.String("owner_claim", cfg.JWTOwnerClaim),
	)
	depCfg.JWKSURL = cfg.JWKSURL
	return jwtAuth.Middleware(), nil
}

// startDephealth запускает topologymetrics. Ошибки не фатальны.
// Возвращает функцию остановки или nil.
func startDephealth(ctx context.Context, depCfg service.DephealthConfig, logger *slog.Logger) func() {
	dh, err := service.NewDephealthService(depCfg, logger)
	if err != nil {
		if errors.Is(err, service.ErrNoDependencies) {
			logger.Info("topologymetrics: нет внешних зависимостей для мониторинга")
			return nil
		}
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := dh.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("group", depCfg.Group),
		slog.String("check_interval", depCfg.CheckInterval.String()),
	)
	return dh.Stop
}
