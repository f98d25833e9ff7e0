// Package storage содержит общие для всех реализаций хранилища ошибки.
// Реализации: repository (Postgres), storage/memory (тесты и запуск с -memory).
package storage

import "errors"

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrConflict — нарушено ограничение уникальности.
	ErrConflict = errors.New("conflict")
)
