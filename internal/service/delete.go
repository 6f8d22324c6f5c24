// delete.go — координатор удаления: поиск метаданных → удаление blob →
// удаление метаданных → инвалидация кэша.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AdityaJha012/cloud-drop/internal/repository"
	"github.com/AdityaJha012/cloud-drop/internal/storage/blob"
)

// DeleteService — координатор удаления файлов.
type DeleteService struct {
	blobs   blob.Store
	repo    repository.FileRepository
	cache   MetadataCache
	scoping bool
	logger  *slog.Logger
}

// NewDeleteService создаёт координатор удаления. cache может быть nil.
func NewDeleteService(
	blobs blob.Store,
	repo repository.FileRepository,
	cache MetadataCache,
	ownerScoping bool,
	logger *slog.Logger,
) *DeleteService {
	if cache == nil {
		cache = NopCache{}
	}
	return &DeleteService{
		blobs:   blobs,
		repo:    repo,
		cache:   cache,
		scoping: ownerScoping,
		logger:  logger.With(slog.String("component", "delete_service")),
	}
}

// DeleteByID удаляет файл владельца. Повторное удаление даёт ErrNotFound.
//
// Порядок: сначала blob, затем метаданные. При сбое между шагами остаётся
// запись со ссылкой на отсутствующий объект, которая видна в списке,
// а не blob без метаданных.
func (s *DeleteService) DeleteByID(ctx context.Context, owner, id string) error {
	if err := checkOwner(s.scoping, owner); err != nil {
		return err
	}

	meta, err := s.repo.FindByID(ctx, id, owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}

	if err := s.blobs.Delete(ctx, meta.Container, meta.StoragePath); err != nil {
		s.logger.Error("Ошибка удаления blob",
			slog.String("file_id", id),
			slog.String("key", meta.StoragePath),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	// Blob уже удалён: запись удаляется независимо от отмены запроса
	if err := s.repo.Delete(context.WithoutCancel(ctx), id, owner); err != nil {
		s.cache.Delete(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			// Параллельное удаление успело раньше
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		s.logger.Error("Blob удалён, но запись метаданных осталась",
			slog.String("file_id", id),
			slog.String("key", meta.StoragePath),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
	s.cache.Delete(ctx, id)

	s.logger.Info("Файл удалён",
		slog.String("file_id", id),
		slog.String("owner", owner),
		slog.String("key", meta.StoragePath),
	)
	return nil
}
