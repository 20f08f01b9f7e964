package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/caseflow"
)

// getCase returns the cached final state of a completed case.
func (a *API) getCase(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("caseId")
	if a.results == nil {
		a.mapError(w, r, fmt.Errorf("%w: %s", caseflow.ErrCaseNotFound, caseID))
		return
	}
	st, err := a.results.Get(r.Context(), caseID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
