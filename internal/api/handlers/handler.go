// handler.go — FilesHandler: HTTP-граница над сервисами загрузки,
// выборки и удаления. Отображение ошибок сервиса в HTTP в одном месте.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/AdityaJha012/cloud-drop/internal/api/errors"
	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
	"github.com/AdityaJha012/cloud-drop/internal/service"
)

// Uploader — операции загрузки.
type Uploader interface {
	UploadOne(ctx context.Context, owner string, in service.UploadInput) (*service.FileWithURL, error)
	UploadMany(ctx context.Context, owner string, inputs []service.UploadInput) ([]service.BatchItemResult, error)
}

// Querier — операции чтения.
type Querier interface {
	List(ctx context.Context, owner string, filter model.Filter, page, limit int) (*service.ListResult, error)
	GetByID(ctx context.Context, owner, id string) (*service.FileWithURL, error)
}

// Deleter — удаление файла.
type Deleter interface {
	DeleteByID(ctx context.Context, owner, id string) error
}

// Limits — ограничения multipart-запросов.
type Limits struct {
	// MaxFileSize — максимальный размер одного файла
	MaxFileSize int64
	// MaxFiles — максимальное количество файлов в пакете
	MaxFiles int
}

// FilesHandler — обработчик /api/files endpoints.
type FilesHandler struct {
	upload  Uploader
	query   Querier
	deleter Deleter
	limits  Limits
	logger  *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(upload Uploader, query Querier, deleter Deleter, limits Limits, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		upload:  upload,
		query:   query,
		deleter: deleter,
		limits:  limits,
		logger:  logger.With(slog.String("component", "files_handler")),
	}
}

// writeJSON записывает JSON-ответ.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// classify отображает ошибку сервиса в HTTP-статус, код и сообщение для клиента.
// Детали сбоев хранилищ клиенту не передаются.
func classify(err error) (int, string, string) {
	var orphan *service.OrphanBlobError
	switch {
	case errors.As(err, &orphan):
		return http.StatusInternalServerError, apierrors.CodeOrphanBlob, "Не удалось сохранить метаданные файла"
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, apierrors.CodeFileTooLarge, err.Error()
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, apierrors.CodeValidationError, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, apierrors.CodeNotFound, "Файл не найден"
	case errors.Is(err, service.ErrStorage):
		return http.StatusBadGateway, apierrors.CodeStorageError, "Ошибка файлового хранилища"
	case errors.Is(err, service.ErrRepository):
		return http.StatusInternalServerError, apierrors.CodeRepositoryError, "Ошибка хранилища метаданных"
	default:
		return http.StatusInternalServerError, apierrors.CodeInternalError, "Внутренняя ошибка"
	}
}

// writeServiceError записывает ответ для ошибки сервиса.
// Ошибки 5xx логируются с полной причиной.
func (h *FilesHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("code", code),
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
	}
	apierrors.WriteError(w, status, code, message)
}
