package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xraph/caseflow"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor converts caseflow errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case isNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, caseflow.ErrRunActive), errors.Is(err, caseflow.ErrRunNotActive):
		return http.StatusConflict
	case errors.Is(err, caseflow.ErrInvalidState), caseflow.KindOf(err) == caseflow.KindPermanentInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, caseflow.ErrCheckpointNotFound) ||
		errors.Is(err, caseflow.ErrCaseNotFound) ||
		errors.Is(err, caseflow.ErrRunNotFound) ||
		errors.Is(err, caseflow.ErrStageNotFound)
}

// mapError writes err with its mapped status. Server errors are logged and
// their detail is withheld from the client.
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
