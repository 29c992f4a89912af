package storage

import "errors"

var (
	// ErrModelConfigNotFound is returned when a model config is not found
	ErrModelConfigNotFound = errors.New("model config not found")

	// ErrTaskNotFound is returned when an AI task is not found
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask is returned when (provider, task_id) already exists
	ErrDuplicateTask = errors.New("task already exists for provider task id")

	// ErrNotificationNotFound is returned when a notification is not found
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrProviderNotFound is returned when no credential is stored for a provider
	ErrProviderNotFound = errors.New("provider not found")

	// ErrInsufficientCredits is returned when a debit would make the balance negative
	ErrInsufficientCredits = errors.New("insufficient credits")
)
