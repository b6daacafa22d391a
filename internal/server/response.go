package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type envelope map[string]interface{}

// SuccessResponse builds the success JSON envelope.
func SuccessResponse(message string, data interface{}) envelope {
	response := envelope{
		"success":   true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	if data != nil {
		response["data"] = data
	}

	return response
}

// ErrorResponse builds the error JSON envelope.
func ErrorResponse(code string, message string) envelope {
	return envelope{
		"success":   false,
		"error":     code,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
