// Пакет config — загрузка и валидация конфигурации cloud-drop
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Version — версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилищ.
const (
	BlobBackendS3     = "s3"
	BlobBackendMemory = "memory"

	MetadataBackendMongo    = "mongodb"
	MetadataBackendPostgres = "postgres"

	CacheBackendLRU   = "lru"
	CacheBackendRedis = "redis"
	CacheBackendNone  = "none"

	AuthModeJWT       = "jwt"
	AuthModeAnonymous = "anonymous"
)

// DefaultAllowedMimeTypes — список MIME-типов, допустимых по умолчанию.
var DefaultAllowedMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"audio/mpeg",
	"video/mp4",
	"application/zip",
}

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- Загрузка ---

	// Максимальный размер одного файла в байтах
	MaxFileSize int64
	// Максимальное количество файлов в одном пакетном запросе
	MaxFiles int
	// Допустимые MIME-типы
	AllowedMimeTypes []string
	// Время жизни ссылки доступа по умолчанию
	URLTTL time.Duration
	// Префикс ключа объекта в контейнере
	KeyPrefix string
	// Требовать владельца для всех операций
	OwnerScoping bool

	// --- Blob-хранилище ---

	BlobBackend string
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3PathStyle bool

	// Путь проверки доступности хранилища (MinIO: /minio/health/live)
	S3HealthPath string

	// --- Хранилище метаданных ---

	MetadataBackend string
	MongoURI        string
	MongoDatabase   string
	DBHost          string
	DBPort          int
	DBName          string
	DBUser          string
	DBPassword      string
	DBSSLMode       string

	// --- Кэш метаданных ---

	CacheBackend  string
	CacheSize     int
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- Аутентификация ---

	AuthMode      string
	JWKSURL       string
	JWTOwnerClaim string

	// --- Мониторинг зависимостей ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("CD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("CD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CD_PORT: порт %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CD_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("CD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CD_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("CD_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CD_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Загрузка ---

	cfg.MaxFileSize, err = getEnvInt64("CD_MAX_FILE_SIZE", 50*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("CD_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("CD_MAX_FILE_SIZE: значение должно быть > 0")
	}
	// Поток читается до max+1 байт, чтобы заметить превышение
	if cfg.MaxFileSize == math.MaxInt64 {
		return nil, fmt.Errorf("CD_MAX_FILE_SIZE: значение должно быть < %d", int64(math.MaxInt64))
	}

	cfg.MaxFiles, err = getEnvInt("CD_MAX_FILES", 10)
	if err != nil {
		return nil, fmt.Errorf("CD_MAX_FILES: %w", err)
	}
	if cfg.MaxFiles <= 0 {
		return nil, fmt.Errorf("CD_MAX_FILES: значение должно быть > 0")
	}

	cfg.AllowedMimeTypes = getEnvList("CD_ALLOWED_MIME_TYPES", DefaultAllowedMimeTypes)

	cfg.URLTTL, err = getEnvDuration("CD_URL_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CD_URL_TTL: %w", err)
	}
	if cfg.URLTTL <= 0 {
		return nil, fmt.Errorf("CD_URL_TTL: значение должно быть > 0")
	}

	cfg.KeyPrefix = getEnvDefault("CD_KEY_PREFIX", "uploads/")

	cfg.OwnerScoping, err = getEnvBool("CD_OWNER_SCOPING", true)
	if err != nil {
		return nil, fmt.Errorf("CD_OWNER_SCOPING: %w", err)
	}

	// --- Blob-хранилище ---

	cfg.BlobBackend = getEnvDefault("CD_BLOB_BACKEND", BlobBackendS3)
	cfg.S3Bucket = getEnvDefault("CD_S3_BUCKET", "cloud-drop")
	switch cfg.BlobBackend {
	case BlobBackendS3:
		cfg.S3Endpoint, err = getEnvRequired("CD_S3_ENDPOINT")
		if err != nil {
			return nil, err
		}
		if _, err := url.ParseRequestURI(cfg.S3Endpoint); err != nil {
			return nil, fmt.Errorf("CD_S3_ENDPOINT: некорректный URL %q", cfg.S3Endpoint)
		}
		cfg.S3AccessKey, err = getEnvRequired("CD_S3_ACCESS_KEY")
		if err != nil {
			return nil, err
		}
		cfg.S3SecretKey, err = getEnvRequired("CD_S3_SECRET_KEY")
		if err != nil {
			return nil, err
		}
		cfg.S3Region = getEnvDefault("CD_S3_REGION", "us-east-1")
		cfg.S3HealthPath = getEnvDefault("CD_S3_HEALTH_PATH", "/minio/health/live")
		cfg.S3PathStyle, err = getEnvBool("CD_S3_PATH_STYLE", true)
		if err != nil {
			return nil, fmt.Errorf("CD_S3_PATH_STYLE: %w", err)
		}
	case BlobBackendMemory:
	default:
		return nil, fmt.Errorf("CD_BLOB_BACKEND: недопустимое значение %q, допустимые: s3, memory", cfg.BlobBackend)
	}

	// --- Хранилище метаданных ---

	cfg.MetadataBackend = getEnvDefault("CD_METADATA_BACKEND", MetadataBackendMongo)
	switch cfg.MetadataBackend {
	case MetadataBackendMongo:
		cfg.MongoURI, err = getEnvRequired("CD_MONGODB_URI")
		if err != nil {
			return nil, err
		}
		cfg.MongoDatabase = getEnvDefault("CD_MONGODB_DATABASE", "clouddrop")
	case MetadataBackendPostgres:
		cfg.DBHost, err = getEnvRequired("CD_DB_HOST")
		if err != nil {
			return nil, err
		}
		cfg.DBPort, err = getEnvInt("CD_DB_PORT", 5432)
		if err != nil {
			return nil, fmt.Errorf("CD_DB_PORT: %w", err)
		}
		cfg.DBName, err = getEnvRequired("CD_DB_NAME")
		if err != nil {
			return nil, err
		}
		cfg.DBUser, err = getEnvRequired("CD_DB_USER")
		if err != nil {
			return nil, err
		}
		cfg.DBPassword, err = getEnvRequired("CD_DB_PASSWORD")
		if err != nil {
			return nil, err
		}
		cfg.DBSSLMode = getEnvDefault("CD_DB_SSL_MODE", "disable")
	default:
		return nil, fmt.Errorf("CD_METADATA_BACKEND: недопустимое значение %q, допустимые: mongodb, postgres", cfg.MetadataBackend)
	}

	// --- Кэш метаданных ---

	cfg.CacheBackend = getEnvDefault("CD_CACHE_BACKEND", CacheBackendNone)
	cfg.CacheSize, err = getEnvInt("CD_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("CD_CACHE_SIZE: %w", err)
	}
	cfg.CacheTTL, err = getEnvDuration("CD_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CD_CACHE_TTL: %w", err)
	}
	switch cfg.CacheBackend {
	case CacheBackendLRU:
		if cfg.CacheSize <= 0 {
			return nil, fmt.Errorf("CD_CACHE_SIZE: значение должно быть > 0")
		}
	case CacheBackendRedis:
		cfg.RedisAddr, err = getEnvRequired("CD_REDIS_ADDR")
		if err != nil {
			return nil, err
		}
		cfg.RedisPassword = os.Getenv("CD_REDIS_PASSWORD")
		cfg.RedisDB, err = getEnvInt("CD_REDIS_DB", 0)
		if err != nil {
			return nil, fmt.Errorf("CD_REDIS_DB: %w", err)
		}
	case CacheBackendNone:
	default:
		return nil, fmt.Errorf("CD_CACHE_BACKEND: недопустимое значение %q, допустимые: lru, redis, none", cfg.CacheBackend)
	}

	// --- Аутентификация ---

	cfg.AuthMode = getEnvDefault("CD_AUTH_MODE", AuthModeJWT)
	switch cfg.AuthMode {
	case AuthModeJWT:
		cfg.JWKSURL, err = getEnvRequired("CD_JWKS_URL")
		if err != nil {
			return nil, err
		}
		cfg.JWTOwnerClaim = getEnvDefault("CD_JWT_OWNER_CLAIM", "id")
	case AuthModeAnonymous:
		if cfg.OwnerScoping {
			return nil, fmt.Errorf("CD_AUTH_MODE: режим anonymous несовместим с CD_OWNER_SCOPING=true")
		}
	default:
		return nil, fmt.Errorf("CD_AUTH_MODE: недопустимое значение %q, допустимые: jwt, anonymous", cfg.AuthMode)
	}

	// --- Мониторинг зависимостей ---

	cfg.DephealthGroup = getEnvDefault("CD_DEPHEALTH_GROUP", "cloud-drop")
	cfg.DephealthCheckInterval, err = getEnvDuration("CD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN формирует строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 из переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// getEnvList разбирает список через запятую. Пустые элементы отбрасываются.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		out := make([]string, len(defaultVal))
		copy(out, defaultVal)
		return out
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
