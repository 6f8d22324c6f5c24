// errors.go — таксономия ошибок сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — некорректный запрос (размер, тип, количество, владелец).
	// Ввод-вывод не выполнялся.
	ErrValidation = errors.New("ошибка валидации")
	// ErrFileTooLarge — размер файла превышает лимит. Всегда вместе с ErrValidation.
	ErrFileTooLarge = errors.New("файл превышает допустимый размер")
	// ErrStorage — ошибка blob-хранилища.
	ErrStorage = errors.New("ошибка blob-хранилища")
	// ErrRepository — ошибка хранилища метаданных.
	ErrRepository = errors.New("ошибка хранилища метаданных")
	// ErrOrphanBlob — blob остался без метаданных: компенсирующее удаление не удалось.
	ErrOrphanBlob = errors.New("осиротевший blob")
	// ErrNotFound — запись не найдена для данного владельца.
	ErrNotFound = errors.New("файл не найден")
)

// OrphanBlobError — blob записан, метаданные не сохранены, и удалить blob
// не удалось. Требует ручной сверки оператором.
type OrphanBlobError struct {
	Container string
	Key       string
	// Cause — ошибка, вызвавшая компенсацию (обычно запись метаданных).
	Cause error
	// CompensationErr — ошибка компенсирующего удаления.
	CompensationErr error
}

func (e *OrphanBlobError) Error() string {
	return fmt.Sprintf("%s: %s/%s: причина: %v; компенсация: %v",
		ErrOrphanBlob, e.Container, e.Key, e.Cause, e.CompensationErr)
}

// Unwrap позволяет errors.Is находить ErrOrphanBlob и исходные причины.
func (e *OrphanBlobError) Unwrap() []error {
	return []error{ErrOrphanBlob, e.Cause, e.CompensationErr}
}

// checkOwner проверяет владельца: при включённом owner scoping
// пустой владелец недопустим.
func checkOwner(scoping bool, owner string) error {
	if scoping && owner == "" {
		return fmt.Errorf("%w: владелец не указан", ErrValidation)
	}
	return nil
}
