package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AdityaJha012/cloud-drop/internal/storage/blob"
)

func TestAccessGranter_Grant(t *testing.T) {
	g := NewAccessGranter(blob.NewMemoryStore(), time.Hour)
	meta := sampleMeta("id-1")

	u, err := g.Grant(context.Background(), meta)
	if err != nil {
		t.Fatalf("Grant ошибка: %v", err)
	}
	if !strings.HasPrefix(u, "memory://bucket/uploads/test-0123.txt?expires=") {
		t.Errorf("URL = %q", u)
	}
}

func TestAccessGranter_InvalidTTL(t *testing.T) {
	g := NewAccessGranter(blob.NewMemoryStore(), time.Hour)
	if _, err := g.GrantTTL(context.Background(), sampleMeta("id-1"), 0); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}
}

func TestAccessGranter_StoreError(t *testing.T) {
	blobs := newFaultyBlobs()
	blobs.signErr = errInjected
	g := NewAccessGranter(blobs, time.Hour)

	if _, err := g.Grant(context.Background(), sampleMeta("id-1")); !errors.Is(err, ErrStorage) {
		t.Errorf("ожидалась ErrStorage, получено %v", err)
	}
}
