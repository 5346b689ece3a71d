package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tripstore/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFromError maps domain errors onto HTTP status codes.
func statusFromError(err error) int {
	var (
		notFound   *domain.NotFoundError
		noMatch    *domain.NoMatchingTripError
		validation *domain.ValidationError
		state      *domain.StateError
		direction  *domain.DirectionError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &noMatch):
		return http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &direction):
		return http.StatusBadRequest
	case errors.As(err, &state):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
