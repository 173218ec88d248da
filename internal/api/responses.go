package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mbakke/signoff/internal/db"
	"github.com/mbakke/signoff/internal/logging"
	"github.com/mbakke/signoff/internal/models"
	"github.com/mbakke/signoff/internal/workflow"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

// respondError maps the engine's error taxonomy onto HTTP statuses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	kind := "internal"

	var validation *models.ValidationErrors
	switch {
	case errors.Is(err, workflow.ErrUnauthenticated):
		status, kind = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, workflow.ErrUnauthorized):
		status, kind = http.StatusForbidden, "unauthorized"
	case errors.Is(err, workflow.ErrInvalidState):
		status, kind = http.StatusConflict, "invalid_state"
	case errors.Is(err, db.ErrRequestNotFound),
		errors.Is(err, db.ErrStepNotFound),
		errors.Is(err, db.ErrUserNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.As(err, &validation):
		status, kind = http.StatusBadRequest, "validation"
	}

	respondJSON(w, status, errorResponse{
		Error:     err.Error(),
		Kind:      kind,
		RequestID: RequestID(r.Context()),
	})
}
