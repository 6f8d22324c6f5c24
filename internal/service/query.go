// query.go — выборка метаданных: список с фильтрами и пагинацией,
// получение по ID. Каждой записи выдаётся свежая ссылка доступа.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
	"github.com/AdityaJha012/cloud-drop/internal/repository"
)

// Параметры пагинации.
const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage — наибольший номер страницы, при котором смещение
	// (page-1)*limit помещается в int при любом допустимом limit.
	MaxPage = math.MaxInt/MaxLimit + 1
)

// Prometheus-метрики выборки.
var (
	listDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cd_list_duration_seconds",
		Help:    "Длительность запросов списка файлов.",
		Buckets: prometheus.DefBuckets,
	})
)

// ListResult — страница результатов.
type ListResult struct {
	Items      []*FileWithURL `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// QueryService — чтение метаданных.
type QueryService struct {
	repo    repository.FileRepository
	cache   MetadataCache
	access  *AccessGranter
	scoping bool
	logger  *slog.Logger
}

// NewQueryService создаёт сервис выборки. cache может быть nil.
func NewQueryService(
	repo repository.FileRepository,
	cache MetadataCache,
	access *AccessGranter,
	ownerScoping bool,
	logger *slog.Logger,
) *QueryService {
	if cache == nil {
		cache = NopCache{}
	}
	return &QueryService{
		repo:    repo,
		cache:   cache,
		access:  access,
		scoping: ownerScoping,
		logger:  logger.With(slog.String("component", "query_service")),
	}
}

// NormalizePage приводит page и limit к допустимым значениям:
// page ограничивается [1, MaxPage]; limit 0 → 20; limit ограничивается [1, 100].
func NormalizePage(page, limit int) model.Page {
	switch {
	case page < 1:
		page = 1
	case page > MaxPage:
		page = MaxPage
	}
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return model.Page{Number: page, Limit: limit}
}

// TotalPages — ceil(total/limit).
func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// List возвращает страницу файлов владельца, отсортированных по дате создания (новые первыми).
// Владелец из аргумента всегда перекрывает filter.Owner.
func (s *QueryService) List(ctx context.Context, owner string, filter model.Filter, page, limit int) (*ListResult, error) {
	if err := checkOwner(s.scoping, owner); err != nil {
		return nil, err
	}
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && filter.CreatedFrom.After(*filter.CreatedTo) {
		return nil, fmt.Errorf("%w: начало диапазона дат позже конца", ErrValidation)
	}
	filter.Owner = owner

	start := time.Now()
	p := NormalizePage(page, limit)

	items, total, err := s.repo.Search(ctx, filter, p.Offset(), p.Limit)
	listDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	result := &ListResult{
		Items:      make([]*FileWithURL, 0, len(items)),
		Total:      total,
		Page:       p.Number,
		Limit:      p.Limit,
		TotalPages: TotalPages(total, p.Limit),
	}
	for _, meta := range items {
		f, err := s.access.withURL(ctx, meta)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, f)
	}

	s.logger.Debug("Список файлов",
		slog.String("owner", owner),
		slog.Int64("total", total),
		slog.Int("page", p.Number),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// GetByID возвращает файл владельца по ID. Запись из кэша
// также проверяется на владельца.
func (s *QueryService) GetByID(ctx context.Context, owner, id string) (*FileWithURL, error) {
	if err := checkOwner(s.scoping, owner); err != nil {
		return nil, err
	}

	meta, ok := s.cache.Get(ctx, id)
	if ok && owner != "" && meta.Owner != owner {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !ok {
		var err error
		meta, err = s.repo.FindByID(ctx, id, owner)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return nil, fmt.Errorf("%w: %w", ErrRepository, err)
		}
		s.cache.Set(ctx, meta)
	}

	return s.access.withURL(ctx, meta)
}
