package utils

import (
	"encoding/json"
	"net/http"
)

// CodeOK and CodeError are the envelope codes clients branch on.
const (
	CodeOK    = 0
	CodeError = -1
)

// Envelope is the uniform response body: {code, message?, data?}.
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// RespondWithData sends a 200 success envelope wrapping data
func RespondWithData(w http.ResponseWriter, data interface{}) error {
	return RespondWithJSON(w, http.StatusOK, Envelope{Code: CodeOK, Data: data})
}

// RespondWithError sends an error envelope with the given HTTP status
func RespondWithError(w http.ResponseWriter, status int, message string) {
	RespondWithJSON(w, status, Envelope{Code: CodeError, Message: message})
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}
