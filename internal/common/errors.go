// Package common содержит сквозные для всего приложения ошибки.
package common

import "errors"

var (
	// ошибки учётных записей
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrRateLimited        = errors.New("too many attempts")

	// ошибки классификатора
	ErrModelUnavailable = errors.New("model is not loaded")
	ErrInvalidImage     = errors.New("invalid image")

	// ошибки ассистента
	ErrAssistantUnavailable = errors.New("assistant is not configured")
	ErrAssistantError       = errors.New("assistant request failed")
)
