// files.go — обработчики /api/files: загрузка одного и нескольких файлов,
// список с фильтрами, получение и удаление по ID.
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/AdityaJha012/cloud-drop/internal/api/errors"
	"github.com/AdityaJha012/cloud-drop/internal/api/middleware"
	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
	"github.com/AdityaJha012/cloud-drop/internal/service"
)

// Имена multipart-полей.
const (
	fieldFile  = "file"
	fieldFiles = "files"
)

// sniffLen — объём префикса для определения MIME-типа по содержимому.
const sniffLen = 3072

// dateOnly — формат даты без времени в параметрах фильтра.
const dateOnly = "2006-01-02"

// Upload обрабатывает POST /api/files/upload.
// Часть "file" передаётся в сервис потоком, без буферизации в памяти.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())

	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Ожидается multipart/form-data: "+err.Error())
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			apierrors.ValidationError(w, "Поле 'file' обязательно")
			return
		}
		if err != nil {
			apierrors.ValidationError(w, "Ошибка чтения multipart: "+err.Error())
			return
		}
		if part.FormName() != fieldFile || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		mimeType, body, err := detectContentType(part)
		if err != nil {
			_ = part.Close()
			apierrors.ValidationError(w, "Ошибка чтения файла: "+err.Error())
			return
		}

		result, err := h.upload.UploadOne(r.Context(), owner, service.UploadInput{
			Filename:     part.FileName(),
			MimeType:     mimeType,
			DeclaredSize: -1,
			Body:         body,
		})
		_ = part.Close()
		if err != nil {
			h.writeServiceError(w, r, "upload", err)
			return
		}

		writeJSON(w, http.StatusCreated, result)
		return
	}
}

// batchItem — результат одного файла в ответе upload-multiple.
type batchItem struct {
	Filename string               `json:"filename"`
	File     *service.FileWithURL `json:"file,omitempty"`
	Error    *apierrors.Detail    `json:"error,omitempty"`
}

// batchResponse — ответ upload-multiple.
type batchResponse struct {
	Items     []batchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// UploadMultiple обрабатывает POST /api/files/upload-multiple.
// Части multipart доступны только последовательно, поэтому каждая часть
// сохраняется во временный файл (не более MaxFileSize+1 байт), затем
// пакет загружается параллельно. Читается не более MaxFiles+1 частей:
// превышение лимита отклоняет весь пакет.
// Статус 201 — все файлы загружены, 207 — часть файлов с ошибками.
func (h *FilesHandler) UploadMultiple(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())

	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Ожидается multipart/form-data: "+err.Error())
		return
	}

	var spooled []*os.File
	defer func() {
		for _, f := range spooled {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	var inputs []service.UploadInput
	for len(inputs) <= h.limits.MaxFiles {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			apierrors.ValidationError(w, "Ошибка чтения multipart: "+err.Error())
			return
		}
		if part.FormName() != fieldFiles || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		in, f, err := h.spool(part)
		_ = part.Close()
		if f != nil {
			spooled = append(spooled, f)
		}
		if err != nil {
			h.logger.Error("Ошибка приёма части multipart",
				slog.String("filename", part.FileName()),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Ошибка приёма файла")
			return
		}
		inputs = append(inputs, in)
	}

	results, err := h.upload.UploadMany(r.Context(), owner, inputs)
	if err != nil {
		h.writeServiceError(w, r, "upload_many", err)
		return
	}

	resp := batchResponse{Items: make([]batchItem, 0, len(results))}
	for _, res := range results {
		item := batchItem{Filename: res.Filename, File: res.File}
		if res.Err != nil {
			status, code, message := classify(res.Err)
			if status >= http.StatusInternalServerError {
				h.logger.Error("Ошибка загрузки файла из пакета",
					slog.String("filename", res.Filename),
					slog.String("code", code),
					slog.String("error", res.Err.Error()),
				)
			}
			item.File = nil
			item.Error = &apierrors.Detail{Code: code, Message: message}
			resp.Failed++
		} else {
			resp.Succeeded++
		}
		resp.Items = append(resp.Items, item)
	}

	status := http.StatusCreated
	if resp.Failed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

// spool сохраняет часть во временный файл. Возвращённый файл (если не nil)
// должен быть удалён вызывающим кодом даже при ошибке.
// DeclaredSize и MeasuredSize равны числу сохранённых байт: при превышении
// лимита они больше MaxFileSize и сервис отклоняет файл.
func (h *FilesHandler) spool(part *multipart.Part) (service.UploadInput, *os.File, error) {
	mimeType, body, err := detectContentType(part)
	if err != nil {
		return service.UploadInput{}, nil, err
	}

	f, err := os.CreateTemp("", "cloud-drop-*")
	if err != nil {
		return service.UploadInput{}, nil, fmt.Errorf("создание временного файла: %w", err)
	}

	n, err := io.CopyN(f, body, h.limits.MaxFileSize+1)
	if err != nil && !errors.Is(err, io.EOF) {
		return service.UploadInput{}, f, fmt.Errorf("сохранение части: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return service.UploadInput{}, f, fmt.Errorf("перемотка временного файла: %w", err)
	}

	return service.UploadInput{
		Filename:     part.FileName(),
		MimeType:     mimeType,
		DeclaredSize: n,
		MeasuredSize: n,
		Body:         f,
	}, f, nil
}

// detectContentType возвращает MIME-тип части и поток её содержимого.
// Если тип не указан или равен application/octet-stream, он определяется
// по префиксу данных; прочитанный префикс возвращается в начало потока.
func detectContentType(part *multipart.Part) (string, io.Reader, error) {
	declared := part.Header.Get("Content-Type")
	if normalized := service.NormalizeMimeType(declared); normalized != "" && normalized != "application/octet-stream" {
		return declared, part, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(part, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	head = head[:n]

	return mimetype.Detect(head).String(), io.MultiReader(bytes.NewReader(head), part), nil
}

// listParams — параметры запроса GET /api/files.
type listParams struct {
	Page     *int
	Limit    *int
	ID       *string
	Filename *string
	MimeType *string
	FromDate *time.Time
	ToDate   *time.Time
}

// bindListParams разбирает query-параметры списка.
func bindListParams(q url.Values) (listParams, error) {
	var p listParams
	bindings := []struct {
		name string
		dest any
	}{
		{"page", &p.Page},
		{"limit", &p.Limit},
		{"id", &p.ID},
		{"filename", &p.Filename},
		{"mimeType", &p.MimeType},
		{"fromDate", &p.FromDate},
		{"toDate", &p.ToDate},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dest); err != nil {
			return p, err
		}
	}

	// Дата без времени в toDate включает весь день
	if p.ToDate != nil && len(q.Get("toDate")) == len(dateOnly) {
		end := p.ToDate.AddDate(0, 0, 1).Add(-time.Millisecond)
		p.ToDate = &end
	}
	return p, nil
}

// filter строит фильтр выборки из параметров.
func (p listParams) filter() (model.Filter, error) {
	var f model.Filter
	if p.ID != nil && *p.ID != "" {
		id, err := uuid.Parse(*p.ID)
		if err != nil {
			return f, fmt.Errorf("некорректный id: %w", err)
		}
		f.ID = id.String()
	}
	if p.Filename != nil {
		f.Filename = *p.Filename
	}
	if p.MimeType != nil {
		f.MimeType = service.NormalizeMimeType(*p.MimeType)
	}
	if p.FromDate != nil {
		from := p.FromDate.UTC()
		f.CreatedFrom = &from
	}
	if p.ToDate != nil {
		to := p.ToDate.UTC()
		f.CreatedTo = &to
	}
	return f, nil
}

// List обрабатывает GET /api/files.
// Параметры: page, limit, id, filename, mimeType, fromDate, toDate.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := bindListParams(r.URL.Query())
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	filter, err := params.filter()
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var page, limit int
	if params.Page != nil {
		page = *params.Page
	}
	if params.Limit != nil {
		limit = *params.Limit
	}

	result, err := h.query.List(r.Context(), middleware.OwnerFromContext(r.Context()), filter, page, limit)
	if err != nil {
		h.writeServiceError(w, r, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get обрабатывает GET /api/files/{id}.
func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathFileID(w, r)
	if !ok {
		return
	}

	result, err := h.query.GetByID(r.Context(), middleware.OwnerFromContext(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Delete обрабатывает DELETE /api/files/{id}.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathFileID(w, r)
	if !ok {
		return
	}

	if err := h.deleter.DeleteByID(r.Context(), middleware.OwnerFromContext(r.Context()), id); err != nil {
		h.writeServiceError(w, r, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathFileID извлекает UUID файла из пути. При ошибке пишет 400.
func pathFileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор файла: "+err.Error())
		return "", false
	}
	return id.String(), true
}
