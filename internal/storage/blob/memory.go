// memory.go — in-memory реализация Store для тестов и локального запуска.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

// MemoryObject — сохранённый объект.
type MemoryObject struct {
	Data        []byte
	ContentType string
}

// MemoryStore — потокобезопасное хранилище объектов в памяти.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]MemoryObject
	now     func() time.Time
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]MemoryObject),
		now:     time.Now,
	}
}

func objectID(container, key string) string {
	return container + "/" + key
}

// Put читает поток полностью и сохраняет объект.
func (m *MemoryStore) Put(ctx context.Context, container, key string, r io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("%w: чтение потока %s/%s: %v", ErrStorage, container, key, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if size >= 0 && int64(buf.Len()) != size {
		return fmt.Errorf("%w: %w: %s/%s: передано %d, заявлено %d",
			ErrStorage, ErrSizeMismatch, container, key, buf.Len(), size)
	}

	m.mu.Lock()
	m.objects[objectID(container, key)] = MemoryObject{Data: buf.Bytes(), ContentType: contentType}
	m.mu.Unlock()
	return nil
}

// Delete удаляет объект, если он существует.
func (m *MemoryStore) Delete(_ context.Context, container, key string) error {
	m.mu.Lock()
	delete(m.objects, objectID(container, key))
	m.mu.Unlock()
	return nil
}

// SignedURL возвращает ссылку вида memory://container/key?expires=unix.
func (m *MemoryStore) SignedURL(_ context.Context, container, key string, ttl time.Duration) (string, error) {
	u := url.URL{
		Scheme:   "memory",
		Host:     container,
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {fmt.Sprint(m.now().Add(ttl).Unix())}}.Encode(),
	}
	return u.String(), nil
}

// Get возвращает объект и признак его наличия.
func (m *MemoryStore) Get(container, key string) (MemoryObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectID(container, key)]
	return obj, ok
}

// Len возвращает количество объектов.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
