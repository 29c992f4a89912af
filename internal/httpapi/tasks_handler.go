package httpapi

import (
	"errors"
	"io"
	"net/http"

	"media_gateway/internal/logging"
	"media_gateway/internal/middleware"
	"media_gateway/internal/models"
	"media_gateway/internal/tasks"
	"media_gateway/internal/utils"
)

// GenerateRequest is the body of POST /api/ai/generate
type GenerateRequest struct {
	MediaType  string         `json:"mediaType" validate:"required"`
	Model      string         `json:"model" validate:"required"`
	Prompt     string         `json:"prompt" validate:"max=20000"`
	Options    map[string]any `json:"options"`
	Scene      string         `json:"scene"`
	Resolution string         `json:"resolution"`
	Duration   any            `json:"duration"`
}

// QueryRequest is the body of POST /api/ai/query
type QueryRequest struct {
	TaskID string `json:"taskId" validate:"required"`
}

// callerID is set by RequireUser on every route that uses it
func callerID(r *http.Request) string {
	id, _ := middleware.GetUserID(r.Context())
	return id
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.deps.Tasks.Generate(r.Context(), callerID(r), tasks.GenerateRequest{
		MediaType:  models.MediaType(req.MediaType),
		Model:      req.Model,
		Prompt:     req.Prompt,
		Options:    req.Options,
		Scene:      req.Scene,
		Resolution: req.Resolution,
		Duration:   req.Duration,
	})
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, task)
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.deps.Tasks.Query(r.Context(), callerID(r), req.TaskID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, task)
}

func (h *handlers) retry(w http.ResponseWriter, r *http.Request) {
	task, err := h.deps.Tasks.Retry(r.Context(), callerID(r), r.PathValue("id"))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, task)
}

func (h *handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Tasks.Delete(r.Context(), callerID(r), r.PathValue("id")); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, map[string]bool{"success": true})
}

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.deps.Tasks.List(r.Context(), callerID(r), tasks.ListRequest{
		MediaType: models.MediaType(r.URL.Query().Get("mediaType")),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, result)
}

// notify accepts vendor webhooks. Every delivery is written to the callback
// audit log with its outcome.
func (h *handlers) notify(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	entry := logging.NewCallbackEntry(r, provider, body)
	if err != nil {
		entry.Outcome, entry.Error = "rejected", err.Error()
		h.deps.CallbackLog.Record(entry)
		utils.RespondWithError(w, http.StatusBadRequest, "invalid params: unreadable body")
		return
	}

	result, err := h.deps.Tasks.Notify(r.Context(), provider, body)
	if err != nil {
		entry.Outcome, entry.Error = "rejected", err.Error()
		h.deps.CallbackLog.Record(entry)
		h.logger.Warn("Webhook rejected", "provider", provider, "error", err)

		status := statusFor(err)
		if errors.Is(err, tasks.ErrProviderUnavailable) {
			status = http.StatusNotFound
		}
		if status == http.StatusInternalServerError {
			// Let the vendor redeliver
			h.respondWithServiceError(w, r, err)
			return
		}
		utils.RespondWithError(w, status, err.Error())
		return
	}

	entry.Outcome = "accepted"
	if result.Message != "" {
		entry.Outcome = result.Message
	}
	h.deps.CallbackLog.Record(entry)
	utils.RespondWithData(w, result)
}
