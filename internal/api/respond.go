package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/STRATINT/echoloop/internal/apperrors"
	"github.com/STRATINT/echoloop/internal/scheduler"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, logger, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrJobAlreadyRunning):
		return http.StatusConflict
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, logger *slog.Logger, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, logger, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	return false
}
