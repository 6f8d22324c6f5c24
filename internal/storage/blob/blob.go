// Пакет blob — контракт blob-хранилища и его реализации (S3/MinIO, in-memory).
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrStorage — ошибка ввода-вывода blob-хранилища.
var ErrStorage = errors.New("ошибка blob-хранилища")

// ErrSizeMismatch — количество переданных байт не совпало с объявленным размером.
var ErrSizeMismatch = errors.New("размер не совпадает с объявленным")

// Store — контракт blob-хранилища.
type Store interface {
	// Put потоково записывает объект. size < 0 означает, что размер заранее
	// неизвестен; при size >= 0 количество байт должно совпасть с size.
	Put(ctx context.Context, container, key string, r io.Reader, size int64, contentType string) error
	// Delete удаляет объект. Отсутствие объекта ошибкой не считается.
	Delete(ctx context.Context, container, key string) error
	// SignedURL возвращает ссылку на чтение объекта, действующую ttl.
	SignedURL(ctx context.Context, container, key string, ttl time.Duration) (string, error)
}

// countingReader считает прочитанные байты.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
