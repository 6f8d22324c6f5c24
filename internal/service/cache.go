// cache.go — кэш метаданных файлов по ID.
// Две реализации: in-process LRU с TTL (golang-lru/v2/expirable)
// и общий Redis-кэш для нескольких экземпляров сервиса.
//
// Delete оставляет в кэше отметку об удалении на время TTL. Set не
// перезаписывает отметку, поэтому чтение, начавшееся до удаления,
// не вернёт удалённую запись в кэш.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_cache_hits_total",
		Help: "Общее количество попаданий в кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_cache_misses_total",
		Help: "Общее количество промахов кэша метаданных.",
	})
)

// MetadataCache — кэш метаданных по ID файла.
// Ошибки кэша не фатальны: Get при сбое возвращает промах.
// После Delete(id) вызовы Set для того же id игнорируются до истечения TTL.
type MetadataCache interface {
	Get(ctx context.Context, id string) (*model.FileMetadata, bool)
	Set(ctx context.Context, meta *model.FileMetadata)
	Delete(ctx context.Context, id string)
}

// lruEntry — запись LRU-кэша; deleted означает отметку об удалении.
type lruEntry struct {
	meta    model.FileMetadata
	deleted bool
}

// LRUCache — LRU-кэш с автоматическим TTL, свой у каждого экземпляра.
// Удаление на другом экземпляре сюда не доходит, поэтому LRU-кэш
// допустим только при одной реплике сервиса.
type LRUCache struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, lruEntry]
}

// NewLRUCache создаёт LRU-кэш на maxSize записей с временем жизни ttl.
func NewLRUCache(maxSize int, ttl time.Duration) *LRUCache {
	return &LRUCache{cache: expirable.NewLRU[string, lruEntry](maxSize, nil, ttl)}
}

// Get возвращает копию записи.
func (c *LRUCache) Get(_ context.Context, id string) (*model.FileMetadata, bool) {
	e, ok := c.cache.Get(id)
	if !ok || e.deleted {
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return &e.meta, true
}

// Set сохраняет копию записи, если id не отмечен как удалённый.
func (c *LRUCache) Set(_ context.Context, meta *model.FileMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.cache.Peek(meta.ID); ok && e.deleted {
		return
	}
	c.cache.Add(meta.ID, lruEntry{meta: *meta})
}

// Delete заменяет запись отметкой об удалении.
func (c *LRUCache) Delete(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(id, lruEntry{deleted: true})
}

// Len возвращает количество записей вместе с отметками об удалении.
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// redisKeyPrefix — пространство ключей кэша в Redis.
const redisKeyPrefix = "cloud-drop:file:"

// redisTombstone — значение-отметка об удалении. Не является JSON-объектом.
const redisTombstone = "deleted"

// RedisCache — кэш метаданных в Redis (JSON-значения с TTL).
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache создаёт Redis-кэш поверх готового клиента.
func NewRedisCache(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "redis_cache")),
	}
}

// Get читает запись. Любая ошибка Redis — промах.
func (c *RedisCache) Get(ctx context.Context, id string) (*model.FileMetadata, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Ошибка чтения из кэша",
				slog.String("file_id", id),
				slog.String("error", err.Error()),
			)
		}
		cacheMissesTotal.Inc()
		return nil, false
	}
	if string(data) == redisTombstone {
		cacheMissesTotal.Inc()
		return nil, false
	}

	var meta model.FileMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		c.logger.Warn("Повреждённая запись кэша",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return &meta, true
}

// Set сохраняет запись с TTL через SET NX: существующий ключ, в том числе
// отметка об удалении, не перезаписывается. Записи неизменяемы, так что
// существующее значение не устаревает.
func (c *RedisCache) Set(ctx context.Context, meta *model.FileMetadata) {
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := c.client.SetNX(ctx, redisKeyPrefix+meta.ID, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Ошибка записи в кэш",
			slog.String("file_id", meta.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Delete заменяет запись отметкой об удалении с тем же TTL.
func (c *RedisCache) Delete(ctx context.Context, id string) {
	if err := c.client.Set(ctx, redisKeyPrefix+id, redisTombstone, c.ttl).Err(); err != nil {
		c.logger.Warn("Ошибка удаления из кэша",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// CheckReady проверяет Redis через PING. Кэш не критичен:
// при недоступности статус "degraded", а не "fail".
func (c *RedisCache) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return "degraded", "Redis недоступен, кэш отключён: " + err.Error()
	}
	return "ok", "подключение активно"
}

// NopCache — отключённый кэш.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*model.FileMetadata, bool) { return nil, false }
func (NopCache) Set(context.Context, *model.FileMetadata)                {}
func (NopCache) Delete(context.Context, string)                          {}
