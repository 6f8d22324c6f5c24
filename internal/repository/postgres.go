package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
const fileColumns = `id, stored_filename, original_filename, mime_type, size,
	container, storage_path, owner, created_at, updated_at`

// uniqueViolation — SQLSTATE нарушения уникальности.
const uniqueViolation = "23505"

// pgFileRepo — реализация FileRepository через pgx.
type pgFileRepo struct {
	db DBTX
}

// NewPostgresRepository создаёт репозиторий метаданных поверх PostgreSQL.
func NewPostgresRepository(db DBTX) FileRepository {
	return &pgFileRepo{db: db}
}

// Insert добавляет запись. Пустой владелец хранится как NULL.
func (r *pgFileRepo) Insert(ctx context.Context, f *model.FileMetadata) error {
	query := `
		INSERT INTO files (id, stored_filename, original_filename, mime_type, size,
			container, storage_path, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		f.ID, f.StoredFilename, f.OriginalFilename, f.MimeType, f.Size,
		f.Container, f.StoragePath, nullIfEmpty(f.Owner), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicate, f.ID)
		}
		return fmt.Errorf("ошибка вставки записи: %w", err)
	}
	return nil
}

// FindByID возвращает запись по ID (с учётом владельца) или ErrNotFound.
// Столбец id имеет тип UUID: строка другого формата не может совпасть.
func (r *pgFileRepo) FindByID(ctx context.Context, id, owner string) (*model.FileMetadata, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	where, args := buildSearchWhere(model.Filter{ID: id, Owner: owner}, 1)
	query := fmt.Sprintf(`SELECT %s FROM files %s`, fileColumns, where)

	f, err := scanFile(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return f, nil
}

// Delete удаляет запись по ID (с учётом владельца).
func (r *pgFileRepo) Delete(ctx context.Context, id, owner string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	where, args := buildSearchWhere(model.Filter{ID: id, Owner: owner}, 1)
	tag, err := r.db.Exec(ctx, `DELETE FROM files `+where, args...)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Search выполняет выборку с фильтрами, сортировкой и пагинацией.
func (r *pgFileRepo) Search(ctx context.Context, filter model.Filter, offset, limit int) ([]*model.FileMetadata, int64, error) {
	if filter.ID != "" && !isUUID(filter.ID) {
		return []*model.FileMetadata{}, 0, nil
	}
	where, args := buildSearchWhere(filter, 1)
	argNum := len(args) + 1

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM files %s %s LIMIT $%d OFFSET $%d`,
		fileColumns, where, orderBy, argNum, argNum+1,
	)
	dataArgs := append(append([]any{}, args...), limit, offset)

	rows, err := r.db.Query(ctx, dataQuery, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка поиска записей: %w", err)
	}
	defer rows.Close()

	result := make([]*model.FileMetadata, 0, limit)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	// Общее количество (те же фильтры, без LIMIT/OFFSET)
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM files `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}

	return result, total, nil
}

// scanFile сканирует строку в FileMetadata. Время приводится к UTC.
func scanFile(row pgx.Row) (*model.FileMetadata, error) {
	f := &model.FileMetadata{}
	var owner *string
	if err := row.Scan(
		&f.ID, &f.StoredFilename, &f.OriginalFilename, &f.MimeType, &f.Size,
		&f.Container, &f.StoragePath, &owner, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if owner != nil {
		f.Owner = *owner
	}
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return f, nil
}

// orderBy — детерминированный порядок: новые первыми, при равенстве по id.
const orderBy = "ORDER BY created_at DESC, id DESC"

// buildSearchWhere строит WHERE-условие и аргументы.
// startArg — номер первого $-параметра.
func buildSearchWhere(filter model.Filter, startArg int) (whereClause string, args []any) {
	var conditions []string
	argNum := startArg

	if filter.Owner != "" {
		conditions = append(conditions, fmt.Sprintf("owner = $%d", argNum))
		args = append(args, filter.Owner)
		argNum++
	}

	if filter.ID != "" {
		conditions = append(conditions, fmt.Sprintf("id = $%d", argNum))
		args = append(args, filter.ID)
		argNum++
	}

	// Подстрока имени без учёта регистра; % и _ во вводе — литералы
	if filter.Filename != "" {
		conditions = append(conditions, fmt.Sprintf(`original_filename ILIKE $%d ESCAPE '\'`, argNum))
		args = append(args, "%"+escapeLike(filter.Filename)+"%")
		argNum++
	}

	if filter.MimeType != "" {
		conditions = append(conditions, fmt.Sprintf("mime_type = $%d", argNum))
		args = append(args, filter.MimeType)
		argNum++
	}

	if filter.CreatedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argNum))
		args = append(args, filter.CreatedFrom.UTC())
		argNum++
	}

	if filter.CreatedTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argNum))
		args = append(args, filter.CreatedTo.UTC())
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
