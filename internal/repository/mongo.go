// mongo.go — реализация FileRepository поверх MongoDB.
package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
)

// FilesCollection — имя коллекции метаданных.
const FilesCollection = "files"

// mongoFileRepo — реализация FileRepository через mongo-driver.
type mongoFileRepo struct {
	files *mongo.Collection
}

// NewMongoRepository создаёт репозиторий метаданных поверх коллекции files.
func NewMongoRepository(db *mongo.Database) FileRepository {
	return &mongoFileRepo{files: db.Collection(FilesCollection)}
}

// EnsureIndexes создаёт индексы под сценарии выборки.
// _id уникален сам по себе; storage_path уникален, чтобы ключ
// никогда не использовался двумя записями.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "storage_path", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("storage_path_unique"),
		},
		{
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("owner_created_at"),
		},
		{
			Keys:    bson.D{{Key: "original_filename", Value: 1}},
			Options: options.Index().SetName("original_filename"),
		},
		{
			Keys:    bson.D{{Key: "mime_type", Value: 1}},
			Options: options.Index().SetName("mime_type"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("created_at_id"),
		},
	}
	if _, err := db.Collection(FilesCollection).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("ошибка создания индексов: %w", err)
	}
	return nil
}

// Insert добавляет документ.
func (r *mongoFileRepo) Insert(ctx context.Context, f *model.FileMetadata) error {
	if _, err := r.files.InsertOne(ctx, f); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, f.ID)
		}
		return fmt.Errorf("ошибка вставки записи: %w", err)
	}
	return nil
}

// FindByID возвращает документ по ID (с учётом владельца) или ErrNotFound.
func (r *mongoFileRepo) FindByID(ctx context.Context, id, owner string) (*model.FileMetadata, error) {
	var f model.FileMetadata
	err := r.files.FindOne(ctx, buildMongoFilter(model.Filter{ID: id, Owner: owner})).Decode(&f)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	normalizeTimes(&f)
	return &f, nil
}

// Delete удаляет документ по ID (с учётом владельца).
func (r *mongoFileRepo) Delete(ctx context.Context, id, owner string) error {
	res, err := r.files.DeleteOne(ctx, buildMongoFilter(model.Filter{ID: id, Owner: owner}))
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Search выполняет выборку с фильтрами, сортировкой и пагинацией.
func (r *mongoFileRepo) Search(ctx context.Context, filter model.Filter, offset, limit int) ([]*model.FileMetadata, int64, error) {
	query := buildMongoFilter(filter)

	opts := options.Find().
		SetSort(mongoSort).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.files.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка поиска записей: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]*model.FileMetadata, 0, limit)
	for cursor.Next(ctx) {
		f := &model.FileMetadata{}
		if err := cursor.Decode(f); err != nil {
			return nil, 0, fmt.Errorf("ошибка декодирования записи: %w", err)
		}
		normalizeTimes(f)
		result = append(result, f)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка курсора: %w", err)
	}

	total, err := r.files.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}

	return result, total, nil
}

// mongoSort — новые первыми, при равенстве created_at по _id.
var mongoSort = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

// buildMongoFilter транслирует Filter в документ запроса MongoDB.
func buildMongoFilter(filter model.Filter) bson.D {
	query := bson.D{}

	if filter.Owner != "" {
		query = append(query, bson.E{Key: "owner", Value: filter.Owner})
	}
	if filter.ID != "" {
		query = append(query, bson.E{Key: "_id", Value: filter.ID})
	}
	if filter.Filename != "" {
		// Ввод экранируется: подстрока, а не регулярное выражение
		query = append(query, bson.E{Key: "original_filename", Value: primitive.Regex{
			Pattern: regexp.QuoteMeta(filter.Filename),
			Options: "i",
		}})
	}
	if filter.MimeType != "" {
		query = append(query, bson.E{Key: "mime_type", Value: filter.MimeType})
	}
	if filter.CreatedFrom != nil || filter.CreatedTo != nil {
		rng := bson.D{}
		if filter.CreatedFrom != nil {
			rng = append(rng, bson.E{Key: "$gte", Value: filter.CreatedFrom.UTC()})
		}
		if filter.CreatedTo != nil {
			rng = append(rng, bson.E{Key: "$lte", Value: filter.CreatedTo.UTC()})
		}
		query = append(query, bson.E{Key: "created_at", Value: rng})
	}

	return query
}

func normalizeTimes(f *model.FileMetadata) {
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
}
