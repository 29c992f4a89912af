package tasks

import "errors"

var (
	// ErrInvalidParams is returned when required request fields are missing
	ErrInvalidParams = errors.New("invalid params")

	// ErrPromptOrOptionsRequired is returned when a request carries neither
	ErrPromptOrOptionsRequired = errors.New("prompt or options is required")

	// ErrInvalidMediaType is returned for an unknown media type
	ErrInvalidMediaType = errors.New("invalid mediaType")

	// ErrModelNotFound is returned when the logical model does not exist
	ErrModelNotFound = errors.New("model not found")

	// ErrModelDisabled is returned when the logical model is switched off
	ErrModelDisabled = errors.New("model is disabled")

	// ErrSceneNotSupported is returned when the model does not offer the scene
	ErrSceneNotSupported = errors.New("scene not supported by model")

	// ErrModelNotResolvable is returned when no provider model id is configured
	ErrModelNotResolvable = errors.New("no provider model id configured")

	// ErrProviderUnavailable is returned when no adapter serves the provider
	ErrProviderUnavailable = errors.New("invalid ai provider")

	// ErrGenerateFailed is returned when a vendor accepts a request without a task id
	ErrGenerateFailed = errors.New("ai generate failed")

	// ErrTaskNotFound is returned when the task does not exist or has no remote id
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoPermission is returned when the task belongs to another user
	ErrNoPermission = errors.New("no permission")

	// ErrTaskNotOwned is returned when a task is missing or owned by someone else
	ErrTaskNotOwned = errors.New("task not found or no permission")

	// ErrNotRetryable is returned when retrying a task that has not failed
	ErrNotRetryable = errors.New("only failed tasks can be retried")

	// ErrConcurrencyLimit is returned when the user has too many active tasks
	ErrConcurrencyLimit = errors.New("concurrent task limit reached")
)
