// Пакет model — доменные типы cloud-drop.
package model

import (
	"math"
	"time"
)

// FileMetadata — запись о файле, сохранённом в blob-хранилище.
// Запись неизменяема: изменение файла моделируется удалением и повторной загрузкой.
type FileMetadata struct {
	ID               string    `json:"id" bson:"_id"`
	StoredFilename   string    `json:"stored_filename" bson:"stored_filename"`
	OriginalFilename string    `json:"original_filename" bson:"original_filename"`
	MimeType         string    `json:"mime_type" bson:"mime_type"`
	Size             int64     `json:"size" bson:"size"`
	Container        string    `json:"container" bson:"container"`
	StoragePath      string    `json:"storage_path" bson:"storage_path"`
	Owner            string    `json:"owner,omitempty" bson:"owner,omitempty"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" bson:"updated_at"`
}

// Filter — закрытая спецификация фильтра для выборки метаданных.
// Пустое значение поля означает отсутствие условия.
type Filter struct {
	// Owner — владелец. Пустая строка допустима только без owner scoping.
	Owner string
	// ID — точное совпадение идентификатора.
	ID string
	// Filename — подстрока исходного имени, без учёта регистра.
	Filename string
	// MimeType — точное совпадение MIME-типа.
	MimeType string
	// CreatedFrom / CreatedTo — включительный диапазон даты создания.
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Page — параметры страницы после нормализации.
type Page struct {
	Number int
	Limit  int
}

// Offset возвращает количество пропускаемых записей.
// При переполнении возвращает math.MaxInt.
func (p Page) Offset() int {
	if p.Number <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Limit
}
