package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AdityaJha012/cloud-drop/internal/config"
	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
	"github.com/AdityaJha012/cloud-drop/internal/repository"
	"github.com/AdityaJha012/cloud-drop/internal/storage/blob"
)

// --- Mock: FileRepository в памяти ---

type memRepo struct {
	mu      sync.Mutex
	records map[string]model.FileMetadata

	// Внедрение сбоев
	insertErr error
	deleteErr error
	findErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]model.FileMetadata)}
}

func (r *memRepo) Insert(_ context.Context, f *model.FileMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.records[f.ID]; ok {
		return repository.ErrDuplicate
	}
	r.records[f.ID] = *f
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id, owner string) (*model.FileMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	f, ok := r.records[id]
	if !ok || (owner != "" && f.Owner != owner) {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (r *memRepo) Delete(_ context.Context, id, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	f, ok := r.records[id]
	if !ok || (owner != "" && f.Owner != owner) {
		return repository.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memRepo) Search(_ context.Context, filter model.Filter, offset, limit int) ([]*model.FileMetadata, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, 0, r.findErr
	}

	var matched []model.FileMetadata
	for _, f := range r.records {
		if filter.Owner != "" && f.Owner != filter.Owner {
			continue
		}
		if filter.ID != "" && f.ID != filter.ID {
			continue
		}
		if filter.Filename != "" && !strings.Contains(strings.ToLower(f.OriginalFilename), strings.ToLower(filter.Filename)) {
			continue
		}
		if filter.MimeType != "" && f.MimeType != filter.MimeType {
			continue
		}
		if filter.CreatedFrom != nil && f.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && f.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		matched = append(matched, f)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]*model.FileMetadata, 0, end-offset)
	for i := offset; i < end; i++ {
		f := matched[i]
		out = append(out, &f)
	}
	return out, total, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// --- Mock: blob.Store со сбоями поверх MemoryStore ---

type faultyBlobs struct {
	*blob.MemoryStore
	putErr    error
	deleteErr error
	signErr   error
	deletes   int
	putSizes  []int64
	mu        sync.Mutex
}

func newFaultyBlobs() *faultyBlobs {
	return &faultyBlobs{MemoryStore: blob.NewMemoryStore()}
}

func (b *faultyBlobs) Put(ctx context.Context, container, key string, r io.Reader, size int64, contentType string) error {
	b.mu.Lock()
	b.putSizes = append(b.putSizes, size)
	b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	return b.MemoryStore.Put(ctx, container, key, r, size, contentType)
}

func (b *faultyBlobs) Delete(ctx context.Context, container, key string) error {
	b.mu.Lock()
	b.deletes++
	b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	return b.MemoryStore.Delete(ctx, container, key)
}

func (b *faultyBlobs) SignedURL(ctx context.Context, container, key string, ttl time.Duration) (string, error) {
	if b.signErr != nil {
		return "", b.signErr
	}
	return b.MemoryStore.SignedURL(ctx, container, key, ttl)
}

var errInjected = errors.New("injected failure")

// --- Сборка сервисов ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{
		MaxFileSize:      1024,
		MaxFiles:         3,
		AllowedMimeTypes: []string{"image/jpeg", "application/pdf", "text/plain"},
		URLTTL:           time.Hour,
		KeyPrefix:        "uploads/",
		OwnerScoping:     true,
		S3Bucket:         "bucket",
	}
}

type testEnv struct {
	cfg    *config.Config
	repo   *memRepo
	blobs  *faultyBlobs
	cache  *LRUCache
	upload *UploadService
	query  *QueryService
	delete *DeleteService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	repo := newMemRepo()
	blobs := newFaultyBlobs()
	cache := NewLRUCache(100, time.Minute)
	access := NewAccessGranter(blobs, cfg.URLTTL)
	logger := testLogger()

	return &testEnv{
		cfg:    cfg,
		repo:   repo,
		blobs:  blobs,
		cache:  cache,
		upload: NewUploadService(cfg, blobs, repo, access, logger),
		query:  NewQueryService(repo, cache, access, cfg.OwnerScoping, logger),
		delete: NewDeleteService(blobs, repo, cache, cfg.OwnerScoping, logger),
	}
}

func textInput(name, body string) UploadInput {
	return UploadInput{
		Filename:     name,
		MimeType:     "text/plain",
		DeclaredSize: -1,
		Body:         strings.NewReader(body),
	}
}
