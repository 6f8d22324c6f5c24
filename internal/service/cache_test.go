package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
)

func sampleMeta(id string) *model.FileMetadata {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &model.FileMetadata{
		ID:               id,
		StoredFilename:   "test-0123.txt",
		OriginalFilename: "test.txt",
		MimeType:         "text/plain",
		Size:             1024,
		Container:        "bucket",
		StoragePath:      "uploads/test-0123.txt",
		Owner:            "alice",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// TestLRUCache_GetSetDelete проверяет базовые операции.
func TestLRUCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(100, 5*time.Minute)

	if _, ok := cache.Get(ctx, "id-1"); ok {
		t.Fatal("ожидался промах для нового ключа")
	}

	cache.Set(ctx, sampleMeta("id-1"))
	got, ok := cache.Get(ctx, "id-1")
	if !ok {
		t.Fatal("ожидалось попадание после Set")
	}
	if got.OriginalFilename != "test.txt" {
		t.Errorf("OriginalFilename = %q", got.OriginalFilename)
	}

	// Изменение возвращённой копии не портит кэш
	got.Owner = "mallory"
	again, _ := cache.Get(ctx, "id-1")
	if again.Owner != "alice" {
		t.Errorf("кэш изменён через возвращённую копию: Owner = %q", again.Owner)
	}

	cache.Delete(ctx, "id-1")
	if _, ok := cache.Get(ctx, "id-1"); ok {
		t.Error("ожидался промах после Delete")
	}
}

// TestLRUCache_SetAfterDeleteIgnored — запись, прочитанная до удаления,
// не возвращается в кэш.
func TestLRUCache_SetAfterDeleteIgnored(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(100, 5*time.Minute)

	stale := sampleMeta("id-1")
	cache.Delete(ctx, "id-1")
	cache.Set(ctx, stale)

	if _, ok := cache.Get(ctx, "id-1"); ok {
		t.Error("запись после Delete не должна попадать в кэш")
	}

	// Другие id не затронуты
	cache.Set(ctx, sampleMeta("id-2"))
	if _, ok := cache.Get(ctx, "id-2"); !ok {
		t.Error("ожидалось попадание для id-2")
	}
}

// TestLRUCache_TombstoneExpires — после TTL отметка исчезает.
func TestLRUCache_TombstoneExpires(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, 50*time.Millisecond)
	cache.Delete(ctx, "id-1")

	time.Sleep(150 * time.Millisecond)

	cache.Set(ctx, sampleMeta("id-1"))
	if _, ok := cache.Get(ctx, "id-1"); !ok {
		t.Error("после истечения отметки Set должен работать")
	}
}

// TestLRUCache_Eviction проверяет вытеснение при переполнении.
func TestLRUCache_Eviction(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(2, 5*time.Minute)

	cache.Set(ctx, sampleMeta("a"))
	cache.Set(ctx, sampleMeta("b"))
	cache.Set(ctx, sampleMeta("c"))

	if _, ok := cache.Get(ctx, "a"); ok {
		t.Error("самая старая запись должна быть вытеснена")
	}
	if cache.Len() != 2 {
		t.Errorf("Len = %d, ожидалось 2", cache.Len())
	}
}

// TestLRUCache_TTL проверяет истечение записи.
func TestLRUCache_TTL(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, 50*time.Millisecond)
	cache.Set(ctx, sampleMeta("a"))

	time.Sleep(150 * time.Millisecond)

	if _, ok := cache.Get(ctx, "a"); ok {
		t.Error("запись должна истечь")
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run ошибка: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisCache(client, time.Minute, testLogger())
}

func TestRedisCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t)

	if _, ok := cache.Get(ctx, "id-1"); ok {
		t.Fatal("ожидался промах для нового ключа")
	}

	want := sampleMeta("id-1")
	cache.Set(ctx, want)

	if !mr.Exists(redisKeyPrefix + "id-1") {
		t.Fatal("ключ не записан в Redis")
	}
	if ttl := mr.TTL(redisKeyPrefix + "id-1"); ttl != time.Minute {
		t.Errorf("TTL = %v, ожидалось 1m", ttl)
	}

	got, ok := cache.Get(ctx, "id-1")
	if !ok {
		t.Fatal("ожидалось попадание после Set")
	}
	if *got != *want {
		t.Errorf("Get = %+v, ожидалось %+v", got, want)
	}

	cache.Delete(ctx, "id-1")
	if _, ok := cache.Get(ctx, "id-1"); ok {
		t.Error("ожидался промах после Delete")
	}
}

func TestRedisCache_SetAfterDeleteIgnored(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t)

	cache.Set(ctx, sampleMeta("id-1"))
	cache.Delete(ctx, "id-1")
	cache.Set(ctx, sampleMeta("id-1"))

	if _, ok := cache.Get(ctx, "id-1"); ok {
		t.Error("запись после Delete не должна попадать в кэш")
	}
	got, err := mr.Get(redisKeyPrefix + "id-1")
	if err != nil || got != redisTombstone {
		t.Errorf("значение ключа = %q (%v), ожидалась отметка об удалении", got, err)
	}
	if ttl := mr.TTL(redisKeyPrefix + "id-1"); ttl != time.Minute {
		t.Errorf("TTL отметки = %v, ожидалось 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	cache.Set(ctx, sampleMeta("id-1"))
	if _, ok := cache.Get(ctx, "id-1"); !ok {
		t.Error("после истечения отметки Set должен работать")
	}
}

func TestRedisCache_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t)

	cache.Set(ctx, sampleMeta("id-1"))
	mr.FastForward(2 * time.Minute)

	if _, ok := cache.Get(ctx, "id-1"); ok {
		t.Error("запись должна истечь")
	}
}

func TestRedisCache_CorruptValueIsMiss(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t)

	if err := mr.Set(redisKeyPrefix+"bad", "{not json"); err != nil {
		t.Fatalf("mr.Set ошибка: %v", err)
	}
	if _, ok := cache.Get(ctx, "bad"); ok {
		t.Error("повреждённое значение должно быть промахом")
	}
}

func TestRedisCache_ServerDownIsMiss(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run ошибка: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewRedisCache(client, time.Minute, testLogger())
	mr.Close()

	cache.Set(ctx, sampleMeta("id-1"))
	if _, ok := cache.Get(ctx, "id-1"); ok {
		t.Error("недоступный Redis должен давать промах")
	}
	if status, _ := cache.CheckReady(); status != "degraded" {
		t.Errorf("статус готовности = %q, ожидался degraded", status)
	}
}

func TestRedisCache_CheckReady(t *testing.T) {
	_, cache := newTestRedis(t)
	if status, msg := cache.CheckReady(); status != "ok" {
		t.Errorf("статус = %q (%s), ожидался ok", status, msg)
	}
}
