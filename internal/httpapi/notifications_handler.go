package httpapi

import (
	"net/http"

	"media_gateway/internal/utils"
)

func (h *handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.deps.Notifications.List(r.Context(), callerID(r), page, limit)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, result)
}

func (h *handlers) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Notifications.MarkAllRead(r.Context(), callerID(r)); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, map[string]bool{"success": true})
}

func (h *handlers) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Notifications.MarkRead(r.Context(), r.PathValue("id"), callerID(r)); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, map[string]bool{"success": true})
}
