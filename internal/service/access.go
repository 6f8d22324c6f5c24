// access.go — выдача временных ссылок на скачивание.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
	"github.com/AdityaJha012/cloud-drop/internal/storage/blob"
)

// FileWithURL — метаданные и свежая ссылка доступа.
// Ссылка не сохраняется, генерируется при каждом запросе.
type FileWithURL struct {
	Metadata *model.FileMetadata `json:"metadata"`
	URL      string              `json:"url"`
}

// AccessGranter выдаёт ссылки доступа через blob-хранилище.
type AccessGranter struct {
	blobs blob.Store
	ttl   time.Duration
}

// NewAccessGranter создаёт генератор ссылок с TTL по умолчанию.
func NewAccessGranter(blobs blob.Store, ttl time.Duration) *AccessGranter {
	return &AccessGranter{blobs: blobs, ttl: ttl}
}

// Grant выдаёт ссылку с TTL по умолчанию.
func (g *AccessGranter) Grant(ctx context.Context, meta *model.FileMetadata) (string, error) {
	return g.GrantTTL(ctx, meta, g.ttl)
}

// GrantTTL выдаёт ссылку с указанным TTL.
func (g *AccessGranter) GrantTTL(ctx context.Context, meta *model.FileMetadata, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("%w: TTL ссылки должен быть > 0", ErrValidation)
	}
	u, err := g.blobs.SignedURL(ctx, meta.Container, meta.StoragePath, ttl)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return u, nil
}

// withURL оборачивает запись свежей ссылкой.
func (g *AccessGranter) withURL(ctx context.Context, meta *model.FileMetadata) (*FileWithURL, error) {
	u, err := g.Grant(ctx, meta)
	if err != nil {
		return nil, err
	}
	return &FileWithURL{Metadata: meta, URL: u}, nil
}
