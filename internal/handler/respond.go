// internal/handler/respond.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps the service error types onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		validation  *appErrors.ValidationError
		transition  *appErrors.InvalidTransitionError
		state       *appErrors.InvalidStateError
		notFound    *appErrors.NotFoundError
		duplicate   *appErrors.DuplicateChannelError
		unavailable *appErrors.SchedulerUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &transition), errors.As(err, &state), errors.As(err, &duplicate):
		status = http.StatusConflict
	case errors.As(err, &unavailable):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
