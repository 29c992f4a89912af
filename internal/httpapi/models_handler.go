package httpapi

import (
	"net/http"

	"media_gateway/internal/modelconfig"
	"media_gateway/internal/utils"
)

// UpdateModelConfigRequest is the body of PUT /api/admin/model-config: the
// model id plus any subset of editable fields.
type UpdateModelConfigRequest struct {
	ID string `json:"id" validate:"required"`
	modelconfig.UpdateRequest
}

// listModels serves the public catalogue: enabled and verified models only
func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	configs, err := h.deps.Models.ListEnabled(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, configs)
}

func (h *handlers) adminListModels(w http.ResponseWriter, r *http.Request) {
	showAll := r.URL.Query().Get("showAll") == "true"
	configs, err := h.deps.Models.ListAll(r.Context(), showAll)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, configs)
}

func (h *handlers) adminUpdateModel(w http.ResponseWriter, r *http.Request) {
	var req UpdateModelConfigRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.deps.Models.Update(r.Context(), req.ID, req.UpdateRequest)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, updated)
}
