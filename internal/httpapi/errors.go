package httpapi

import (
	"errors"
	"net/http"

	"media_gateway/internal/billing"
	"media_gateway/internal/modelconfig"
	"media_gateway/internal/providers"
	"media_gateway/internal/storage"
	"media_gateway/internal/tasks"
	"media_gateway/internal/utils"
)

var clientErrors = []error{
	tasks.ErrInvalidParams,
	tasks.ErrPromptOrOptionsRequired,
	tasks.ErrInvalidMediaType,
	tasks.ErrModelDisabled,
	tasks.ErrSceneNotSupported,
	tasks.ErrModelNotResolvable,
	tasks.ErrProviderUnavailable,
	providers.ErrPromptRequired,
	providers.ErrMissingTaskID,
	providers.ErrInvalidCallback,
	providers.ErrCallbacksNotSupported,
}

var notFoundErrors = []error{
	tasks.ErrTaskNotFound,
	tasks.ErrTaskNotOwned,
	tasks.ErrModelNotFound,
	storage.ErrModelConfigNotFound,
	storage.ErrNotificationNotFound,
	storage.ErrTaskNotFound,
}

// statusFor classifies a service error into an HTTP status
func statusFor(err error) int {
	var validation *modelconfig.ValidationError
	var unsupported *providers.UnsupportedMediaTypeError
	var upstream *providers.UpstreamError

	switch {
	case errors.As(err, &validation), errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, tasks.ErrConcurrencyLimit), errors.Is(err, tasks.ErrNotRetryable),
		errors.Is(err, storage.ErrDuplicateTask):
		return http.StatusConflict
	case errors.Is(err, tasks.ErrNoPermission):
		return http.StatusForbidden
	case errors.As(err, &upstream), errors.Is(err, tasks.ErrGenerateFailed):
		return http.StatusBadGateway
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// respondWithServiceError renders err as an envelope. Internal errors are
// logged and their text is not exposed.
func (h *handlers) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal server error"
	case http.StatusPaymentRequired:
		message = "insufficient credits"
	case http.StatusBadGateway:
		h.logger.Warn("Upstream provider error", "path", r.URL.Path, "error", err)
		message = "ai generate failed"
	}
	utils.RespondWithError(w, status, message)
}
