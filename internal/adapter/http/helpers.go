package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeOpenAIError(w http.ResponseWriter, status int, message, errType string) {
	writeJSON(w, status, apiError{Error: apiErrorBody{
		Message: message,
		Type:    errType,
	}})
}
