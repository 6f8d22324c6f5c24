// Пакет repository — хранилище метаданных файлов.
// Две реализации FileRepository: MongoDB (mongo-driver) и PostgreSQL (pgx).
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена (или принадлежит другому владельцу).
	ErrNotFound = errors.New("запись не найдена")
	// ErrDuplicate — запись с таким идентификатором уже существует.
	ErrDuplicate = errors.New("запись уже существует")
)

// FileRepository — доступ к метаданным файлов.
//
// Параметр owner во всех методах: пустая строка означает отсутствие
// ограничения по владельцу (anonymous-режим). Решение о допустимости
// пустого владельца принимает сервисный слой.
type FileRepository interface {
	// Insert сохраняет новую запись.
	Insert(ctx context.Context, f *model.FileMetadata) error
	// FindByID возвращает запись по ID или ErrNotFound.
	FindByID(ctx context.Context, id, owner string) (*model.FileMetadata, error)
	// Delete удаляет запись по ID или возвращает ErrNotFound.
	Delete(ctx context.Context, id, owner string) error
	// Search возвращает страницу записей по фильтру (created_at DESC, id DESC)
	// и общее количество совпадений без учёта пагинации.
	Search(ctx context.Context, filter model.Filter, offset, limit int) ([]*model.FileMetadata, int64, error)
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
