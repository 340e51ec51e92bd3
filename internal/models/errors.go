package models

import "errors"

// Стандартные ошибки приложения
var (
	// Хранилище
	ErrNotFound     = errors.New("resource not found")
	ErrCorruptState = errors.New("persisted progression state is corrupt")

	// События и запросы
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInvalidInput     = errors.New("invalid input data")
	ErrPlayerIDRequired = errors.New("player id is required")

	// Каталог
	ErrUnknownItem = errors.New("item is not in the catalog")
	ErrInvalidRule = errors.New("invalid unlock rule")
)
