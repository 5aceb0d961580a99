package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidWorkerID):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoRecipients),
		errors.Is(err, domain.ErrInvalidBody),
		errors.Is(err, domain.ErrInvalidDedupKey),
		errors.Is(err, domain.ErrBatchEmpty),
		errors.Is(err, domain.ErrBatchTooLarge),
		errors.Is(err, domain.ErrTemplate):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "User not authorized")
	case errors.Is(err, domain.ErrDispatcherStopped):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
