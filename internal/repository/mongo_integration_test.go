package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AdityaJha012/cloud-drop/internal/config"
	"github.com/AdityaJha012/cloud-drop/internal/database"
	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
)

// setupTestMongo запускает MongoDB контейнер и создаёт индексы.
func setupTestMongo(t *testing.T) *mongo.Database {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := mongodb.Run(ctx, "docker.io/mongo:7")
	if err != nil {
		t.Fatalf("Не удалось запустить MongoDB контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить строку подключения: %v", err)
	}

	cfg := &config.Config{
		MongoURI:      uri,
		MongoDatabase: "clouddrop_test",
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client, err := database.ConnectMongo(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database(cfg.MongoDatabase)
	if err := EnsureIndexes(ctx, db); err != nil {
		t.Fatalf("EnsureIndexes() ошибка: %v", err)
	}
	return db
}

func TestMongoRepository_CRUD(t *testing.T) {
	db := setupTestMongo(t)
	ctx := context.Background()
	repo := NewMongoRepository(db)

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := newRecord("alice", "report.pdf", "application/pdf", now)

	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if err := repo.Insert(ctx, rec); !errors.Is(err, ErrDuplicate) {
		t.Errorf("повторный Insert: ожидалась ErrDuplicate, получено %v", err)
	}

	// Тот же storage_path под другим id нарушает уникальный индекс
	clash := newRecord("alice", "other.pdf", "application/pdf", now)
	clash.StoragePath = rec.StoragePath
	if err := repo.Insert(ctx, clash); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Insert с занятым storage_path: ожидалась ErrDuplicate, получено %v", err)
	}

	got, err := repo.FindByID(ctx, rec.ID, "alice")
	if err != nil {
		t.Fatalf("FindByID() ошибка: %v", err)
	}
	if !sameRecord(got, rec) {
		t.Errorf("FindByID() = %+v, ожидалось %+v", got, rec)
	}
	if got.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt в зоне %v, ожидалась UTC", got.CreatedAt.Location())
	}

	// Чужой владелец не видит запись
	if _, err := repo.FindByID(ctx, rec.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID(bob): ожидалась ErrNotFound, получено %v", err)
	}
	if err := repo.Delete(ctx, rec.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(bob): ожидалась ErrNotFound, получено %v", err)
	}

	if err := repo.Delete(ctx, rec.ID, "alice"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := repo.Delete(ctx, rec.ID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete: ожидалась ErrNotFound, получено %v", err)
	}
	if _, err := repo.FindByID(ctx, rec.ID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID после Delete: ожидалась ErrNotFound, получено %v", err)
	}
}

func TestMongoRepository_AnonymousOwner(t *testing.T) {
	db := setupTestMongo(t)
	ctx := context.Background()
	repo := NewMongoRepository(db)

	rec := newRecord("", "note.txt", "text/plain", time.Now().UTC().Truncate(time.Millisecond))
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	// Пустой владелец не сохраняется в документе
	n, err := db.Collection(FilesCollection).CountDocuments(ctx, bson.D{
		{Key: "_id", Value: rec.ID},
		{Key: "owner", Value: bson.D{{Key: "$exists", Value: true}}},
	})
	if err != nil {
		t.Fatalf("CountDocuments() ошибка: %v", err)
	}
	if n != 0 {
		t.Error("поле owner не должно сохраняться для анонимной записи")
	}

	got, err := repo.FindByID(ctx, rec.ID, "")
	if err != nil {
		t.Fatalf("FindByID() ошибка: %v", err)
	}
	if !sameRecord(got, rec) {
		t.Errorf("FindByID() = %+v, ожидалось %+v", got, rec)
	}
}

func TestMongoRepository_SearchPagination(t *testing.T) {
	db := setupTestMongo(t)
	ctx := context.Background()
	repo := NewMongoRepository(db)

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 25; i++ {
		rec := newRecord("alice", fmt.Sprintf("doc-%02d.txt", i), "text/plain", base.Add(time.Duration(i%5)*time.Second))
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() ошибка: %v", err)
		}
	}
	if err := repo.Insert(ctx, newRecord("bob", "photo.jpg", "image/jpeg", base)); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	seen := make(map[string]bool)
	var prev *model.FileMetadata
	for offset := 0; offset < 30; offset += 10 {
		items, total, err := repo.Search(ctx, model.Filter{Owner: "alice"}, offset, 10)
		if err != nil {
			t.Fatalf("Search() ошибка: %v", err)
		}
		if total != 25 {
			t.Errorf("total = %d, ожидалось 25", total)
		}
		for _, it := range items {
			if seen[it.ID] {
				t.Errorf("дубликат %s между страницами", it.ID)
			}
			seen[it.ID] = true
			if prev != nil && it.CreatedAt.After(prev.CreatedAt) {
				t.Errorf("нарушен порядок created_at DESC")
			}
			if prev != nil && it.CreatedAt.Equal(prev.CreatedAt) && it.ID > prev.ID {
				t.Errorf("нарушен порядок id DESC при равном created_at")
			}
			prev = it
		}
	}
	if len(seen) != 25 {
		t.Errorf("всего уникальных = %d, ожидалось 25", len(seen))
	}

	// Подстрока без учёта регистра; точка — литерал
	items, total, err := repo.Search(ctx, model.Filter{Owner: "alice", Filename: "DOC-1"}, 0, 100)
	if err != nil {
		t.Fatalf("Search(filename) ошибка: %v", err)
	}
	if total != 10 || len(items) != 10 {
		t.Errorf("поиск DOC-1: total=%d len=%d, ожидалось 10", total, len(items))
	}
	if _, total, _ := repo.Search(ctx, model.Filter{Owner: "alice", Filename: "doc.0"}, 0, 100); total != 0 {
		t.Errorf("поиск doc.0: total=%d, точка не должна совпадать с любым символом", total)
	}

	items, _, err = repo.Search(ctx, model.Filter{MimeType: "image/jpeg"}, 0, 100)
	if err != nil {
		t.Fatalf("Search(mime) ошибка: %v", err)
	}
	if len(items) != 1 || items[0].Owner != "bob" {
		t.Errorf("поиск image/jpeg вернул %d записей", len(items))
	}

	// Диапазон дат включительный с обеих сторон
	from, to := base.Add(time.Second), base.Add(2*time.Second)
	_, total, err = repo.Search(ctx, model.Filter{Owner: "alice", CreatedFrom: &from, CreatedTo: &to}, 0, 100)
	if err != nil {
		t.Fatalf("Search(dates) ошибка: %v", err)
	}
	if total != 10 {
		t.Errorf("поиск по датам: total=%d, ожидалось 10", total)
	}

	// Страница за пределами выборки пуста
	items, total, err = repo.Search(ctx, model.Filter{Owner: "alice"}, 1000, 10)
	if err != nil || len(items) != 0 || total != 25 {
		t.Errorf("дальняя страница = (%d, %d, %v), ожидалось (0, 25, nil)", len(items), total, err)
	}
}
