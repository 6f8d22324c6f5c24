package service

import (
	"context"
	"errors"
	"testing"
)

func TestDeleteByID_RemovesBlobAndMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	up, err := env.upload.UploadOne(ctx, "alice", textInput("a.txt", "x"))
	if err != nil {
		t.Fatalf("UploadOne ошибка: %v", err)
	}
	// Прогреваем кэш
	if _, err := env.query.GetByID(ctx, "alice", up.Metadata.ID); err != nil {
		t.Fatalf("GetByID ошибка: %v", err)
	}

	if err := env.delete.DeleteByID(ctx, "alice", up.Metadata.ID); err != nil {
		t.Fatalf("DeleteByID ошибка: %v", err)
	}
	if _, ok := env.blobs.Get("bucket", up.Metadata.StoragePath); ok {
		t.Error("blob должен быть удалён")
	}
	if env.repo.count() != 0 {
		t.Error("метаданные должны быть удалены")
	}
	if _, err := env.query.GetByID(ctx, "alice", up.Metadata.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID после удаления: ожидалась ErrNotFound, получено %v", err)
	}
}

func TestDeleteByID_SecondCallNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	up, err := env.upload.UploadOne(ctx, "alice", textInput("a.txt", "x"))
	if err != nil {
		t.Fatalf("UploadOne ошибка: %v", err)
	}
	if err := env.delete.DeleteByID(ctx, "alice", up.Metadata.ID); err != nil {
		t.Fatalf("первое удаление ошибка: %v", err)
	}
	if err := env.delete.DeleteByID(ctx, "alice", up.Metadata.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное удаление: ожидалась ErrNotFound, получено %v", err)
	}
	if env.blobs.deletes != 1 {
		t.Errorf("Delete blob вызван %d раз, ожидался 1", env.blobs.deletes)
	}
}

func TestDeleteByID_BlobFailureKeepsMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	up, err := env.upload.UploadOne(ctx, "alice", textInput("a.txt", "x"))
	if err != nil {
		t.Fatalf("UploadOne ошибка: %v", err)
	}
	env.blobs.deleteErr = errInjected

	if err := env.delete.DeleteByID(ctx, "alice", up.Metadata.ID); !errors.Is(err, ErrStorage) {
		t.Fatalf("ожидалась ErrStorage, получено %v", err)
	}
	if env.repo.count() != 1 {
		t.Error("метаданные должны остаться, пока blob не удалён")
	}
}

func TestDeleteByID_MetadataFailureAfterBlob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	up, err := env.upload.UploadOne(ctx, "alice", textInput("a.txt", "x"))
	if err != nil {
		t.Fatalf("UploadOne ошибка: %v", err)
	}
	env.repo.deleteErr = errInjected

	if err := env.delete.DeleteByID(ctx, "alice", up.Metadata.ID); !errors.Is(err, ErrRepository) {
		t.Fatalf("ожидалась ErrRepository, получено %v", err)
	}
	if _, ok := env.blobs.Get("bucket", up.Metadata.StoragePath); ok {
		t.Error("blob удаляется первым")
	}
}

func TestDeleteByID_LookupFailure(t *testing.T) {
	env := newTestEnv(t)
	env.repo.findErr = errInjected

	if err := env.delete.DeleteByID(context.Background(), "alice", "id"); !errors.Is(err, ErrRepository) {
		t.Errorf("ожидалась ErrRepository, получено %v", err)
	}
	if env.blobs.deletes != 0 {
		t.Error("blob не должен удаляться без найденной записи")
	}
}

func TestDeleteByID_RequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	if err := env.delete.DeleteByID(context.Background(), "", "id"); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}
}
