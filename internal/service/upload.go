// upload.go — координатор загрузки: валидация → запись blob →
// запись метаданных → выдача ссылки, с компенсацией при частичном сбое.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/AdityaJha012/cloud-drop/internal/config"
	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
	"github.com/AdityaJha012/cloud-drop/internal/repository"
	"github.com/AdityaJha012/cloud-drop/internal/storage/blob"
	"github.com/AdityaJha012/cloud-drop/internal/storage/keygen"
)

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cd_uploads_total",
		Help: "Количество загрузок по результату.",
	}, []string{"result"})
	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_upload_bytes_total",
		Help: "Суммарный объём успешно загруженных данных.",
	})
	orphanBlobsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_orphan_blobs_total",
		Help: "Количество blob-объектов, оставшихся без метаданных после неудачной компенсации.",
	})
)

// UploadInput — один загружаемый файл.
type UploadInput struct {
	// Filename — исходное имя файла
	Filename string
	// MimeType — заявленный MIME-тип
	MimeType string
	// DeclaredSize — размер, заявленный клиентом; < 0 если неизвестен.
	// Используется только для ранней валидации.
	DeclaredSize int64
	// MeasuredSize — точный размер, измеренный сервером (например при
	// буферизации во временный файл); 0 если не измерен. Передаётся
	// в blob-хранилище для проверки длины.
	MeasuredSize int64
	// Body — поток данных файла
	Body io.Reader
}

// BatchItemResult — результат загрузки одного файла из пакета.
type BatchItemResult struct {
	Filename string
	File     *FileWithURL
	Err      error
}

// UploadService — координатор загрузки файлов.
type UploadService struct {
	cfg     *config.Config
	blobs   blob.Store
	repo    repository.FileRepository
	access  *AccessGranter
	keys    keygen.Generator
	allowed map[string]struct{}
	now     func() time.Time
	logger  *slog.Logger
}

// NewUploadService создаёт координатор загрузки.
func NewUploadService(
	cfg *config.Config,
	blobs blob.Store,
	repo repository.FileRepository,
	access *AccessGranter,
	logger *slog.Logger,
) *UploadService {
	allowed := make(map[string]struct{}, len(cfg.AllowedMimeTypes))
	for _, mt := range cfg.AllowedMimeTypes {
		allowed[strings.ToLower(mt)] = struct{}{}
	}
	return &UploadService{
		cfg:     cfg,
		blobs:   blobs,
		repo:    repo,
		access:  access,
		allowed: allowed,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "upload_service")),
	}
}

// UploadOne загружает один файл.
func (s *UploadService) UploadOne(ctx context.Context, owner string, in UploadInput) (*FileWithURL, error) {
	if err := checkOwner(s.cfg.OwnerScoping, owner); err != nil {
		uploadsTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	mimeType, err := s.validate(in)
	if err != nil {
		uploadsTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	return s.upload(ctx, owner, in, mimeType)
}

// UploadMany загружает пакет файлов параллельно. Превышение лимита
// количества отклоняет весь пакет до начала записи; в остальном каждый
// файл обрабатывается независимо и получает собственный результат.
func (s *UploadService) UploadMany(ctx context.Context, owner string, inputs []UploadInput) ([]BatchItemResult, error) {
	if err := checkOwner(s.cfg.OwnerScoping, owner); err != nil {
		return nil, err
	}
	if err := s.ValidateBatchSize(len(inputs)); err != nil {
		return nil, err
	}

	results := make([]BatchItemResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(s.cfg.MaxFiles)

	for i, in := range inputs {
		g.Go(func() error {
			results[i].Filename = in.Filename
			mimeType, err := s.validate(in)
			if err != nil {
				uploadsTotal.WithLabelValues("validation").Inc()
				results[i].Err = err
				return nil
			}
			results[i].File, results[i].Err = s.upload(ctx, owner, in, mimeType)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// ValidateBatchSize проверяет количество файлов в пакете.
func (s *UploadService) ValidateBatchSize(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: файлы не переданы", ErrValidation)
	}
	if n > s.cfg.MaxFiles {
		return fmt.Errorf("%w: передано %d файлов, максимум %d", ErrValidation, n, s.cfg.MaxFiles)
	}
	return nil
}

// validate проверяет заявленные размер и тип. Возвращает нормализованный MIME-тип.
func (s *UploadService) validate(in UploadInput) (string, error) {
	if in.Body == nil {
		return "", fmt.Errorf("%w: пустой поток данных", ErrValidation)
	}
	if in.DeclaredSize > s.cfg.MaxFileSize || in.MeasuredSize > s.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: %w: %d байт, максимум %d",
			ErrValidation, ErrFileTooLarge, max(in.DeclaredSize, in.MeasuredSize), s.cfg.MaxFileSize)
	}

	mimeType := NormalizeMimeType(in.MimeType)
	if _, ok := s.allowed[mimeType]; !ok {
		return "", fmt.Errorf("%w: недопустимый тип файла %q", ErrValidation, in.MimeType)
	}
	return mimeType, nil
}

// NormalizeMimeType приводит MIME-тип к нижнему регистру без параметров.
func NormalizeMimeType(mt string) string {
	mt, _, _ = strings.Cut(mt, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// upload выполняет запись blob и метаданных для уже проверенного файла.
func (s *UploadService) upload(ctx context.Context, owner string, in UploadInput, mimeType string) (*FileWithURL, error) {
	stored, err := s.keys.Generate(in.Filename)
	if err != nil {
		uploadsTotal.WithLabelValues("internal").Inc()
		return nil, fmt.Errorf("генерация ключа: %w", err)
	}
	container := s.cfg.S3Bucket
	storagePath := keygen.StoragePath(s.cfg.KeyPrefix, stored)

	// Blob: размер считается по фактически прочитанным байтам;
	// измеренный сервером размер дополнительно проверяет хранилище
	putSize := int64(-1)
	if in.MeasuredSize > 0 {
		putSize = in.MeasuredSize
	}
	body := &limitedCounter{r: in.Body, max: s.cfg.MaxFileSize}
	if err := s.blobs.Put(ctx, container, storagePath, body, putSize, mimeType); err != nil {
		if body.exceeded {
			uploadsTotal.WithLabelValues("validation").Inc()
			tooLarge := fmt.Errorf("%w: %w: больше %d байт", ErrValidation, ErrFileTooLarge, s.cfg.MaxFileSize)
			return nil, s.compensate(ctx, container, storagePath, "", tooLarge)
		}
		uploadsTotal.WithLabelValues("storage").Inc()
		s.logger.Error("Ошибка записи blob",
			slog.String("key", storagePath),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	meta := &model.FileMetadata{
		ID:               uuid.New().String(),
		StoredFilename:   stored,
		OriginalFilename: in.Filename,
		MimeType:         mimeType,
		Size:             body.n,
		Container:        container,
		StoragePath:      storagePath,
		Owner:            owner,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Метаданные: при сбое blob удаляется
	if err := s.repo.Insert(ctx, meta); err != nil {
		s.logger.Error("Ошибка записи метаданных, удаляем blob",
			slog.String("file_id", meta.ID),
			slog.String("key", storagePath),
			slog.String("error", err.Error()),
		)
		repoErr := fmt.Errorf("%w: %w", ErrRepository, err)
		cerr := s.compensate(ctx, container, storagePath, meta.ID, repoErr)
		if errors.Is(cerr, ErrOrphanBlob) {
			uploadsTotal.WithLabelValues("orphan").Inc()
		} else {
			uploadsTotal.WithLabelValues("repository").Inc()
		}
		return nil, cerr
	}

	uploadsTotal.WithLabelValues("ok").Inc()
	uploadBytesTotal.Add(float64(meta.Size))
	s.logger.Info("Файл загружен",
		slog.String("file_id", meta.ID),
		slog.String("owner", owner),
		slog.String("key", storagePath),
		slog.Int64("size", meta.Size),
	)

	// Запись согласована; ошибка подписи ссылки возвращается как ошибка хранилища
	return s.access.withURL(ctx, meta)
}

// compensate удаляет только что записанный blob и возвращает cause.
// Если удалить не удалось — возвращает *OrphanBlobError.
// Удаление не зависит от отмены контекста запроса.
func (s *UploadService) compensate(ctx context.Context, container, key, fileID string, cause error) error {
	delErr := s.blobs.Delete(context.WithoutCancel(ctx), container, key)
	if delErr == nil {
		return cause
	}

	orphanBlobsTotal.Inc()
	s.logger.Error("ORPHAN BLOB: компенсирующее удаление не удалось, требуется ручная сверка",
		slog.String("container", container),
		slog.String("key", key),
		slog.String("file_id", fileID),
		slog.String("cause", cause.Error()),
		slog.String("error", delErr.Error()),
	)
	return &OrphanBlobError{
		Container:       container,
		Key:             key,
		Cause:           cause,
		CompensationErr: delErr,
	}
}

// errLimitExceeded — поток длиннее допустимого.
var errLimitExceeded = errors.New("превышен допустимый размер потока")

// limitedCounter считает прочитанные байты и обрывает поток,
// как только их больше max.
type limitedCounter struct {
	r        io.Reader
	max      int64
	n        int64
	exceeded bool
}

func (l *limitedCounter) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, errLimitExceeded
	}
	// Читаем не больше max+1 байт суммарно, чтобы заметить превышение
	remaining := l.max - l.n
	if remaining < math.MaxInt64 {
		remaining++
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		l.exceeded = true
		return n, errLimitExceeded
	}
	return n, err
}
