// Пакет keygen — генерация ключей хранения для blob-хранилища.
//
// Формат ключа: {base}-{token}{ext}, где base — имя файла без расширения
// в нижнем регистре с заменой символов вне [a-z0-9-] на "-", token —
// 128 бит из crypto/rand в hex, ext — расширение исходного файла.
package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
)

// tokenBytes — размер случайного токена в байтах (128 бит).
const tokenBytes = 16

// defaultBase — имя, используемое при пустом базовом имени.
const defaultBase = "file"

// Generator генерирует ключи хранения. Нулевое значение использует crypto/rand.
type Generator struct {
	// Random — источник случайных байт. nil означает crypto/rand.Reader.
	Random io.Reader
}

// Generate — ключ хранения для исходного имени файла с crypto/rand.
func Generate(original string) (string, error) {
	return Generator{}.Generate(original)
}

// Generate возвращает ключ хранения для исходного имени файла.
// Ошибка возможна только при отказе источника случайных байт.
func (g Generator) Generate(original string) (string, error) {
	src := g.Random
	if src == nil {
		src = rand.Reader
	}

	var buf [tokenBytes]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return "", fmt.Errorf("генерация токена ключа: %w", err)
	}

	base, ext := splitName(original)
	return sanitize(base) + "-" + hex.EncodeToString(buf[:]) + ext, nil
}

// StoragePath возвращает путь объекта внутри контейнера.
func StoragePath(prefix, stored string) string {
	return prefix + stored
}

// splitName отделяет расширение от имени файла. Каталоги в имени
// (в том числе windows-стиля) отбрасываются. Расширение сохраняется
// в нижнем регистре, только если состоит из [a-z0-9].
func splitName(name string) (string, string) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return "", ""
	}

	ext := strings.ToLower(path.Ext(name))
	base := strings.TrimSuffix(name, path.Ext(name))
	if !validExt(ext) {
		// Невалидное расширение отбрасывается целиком.
		ext = ""
	}
	return base, ext
}

func validExt(ext string) bool {
	if len(ext) < 2 {
		return false
	}
	for _, r := range ext[1:] {
		if !isSafeRune(r) || r == '-' {
			return false
		}
	}
	return true
}

// sanitize приводит базовое имя к [a-z0-9-].
func sanitize(base string) string {
	base = strings.ToLower(base)
	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return defaultBase
	}
	return b.String()
}

func isSafeRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
}
