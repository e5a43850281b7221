package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient временная ошибка: сеть, таймаут, 5xx. Повторяется с бэкоффом.
	ErrTransient = errors.New("transient sync error")
	// ErrPermanent постоянная ошибка: сервер отклонил данные. Повтор бессмыслен.
	ErrPermanent = errors.New("permanent sync error")
	// ErrConflict конфликт версий или состояния, требует разрешения
	ErrConflict = errors.New("sync conflict")

	ErrItemNotFound  = errors.New("queue item not found")
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyInSync = errors.New("sync pass already running")
)

// Transient помечает ошибку как временную
func Transient(err error) error {
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// Permanent помечает ошибку как постоянную
func Permanent(err error) error {
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}

// IsTransient проверяет, можно ли повторять операцию
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent проверяет, является ли ошибка терминальной
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
