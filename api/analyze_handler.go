package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/id"
	"github.com/xraph/caseflow/orchestrator"
	"github.com/xraph/caseflow/state"
)

func decodeAnalyze(r *http.Request) (*AnalyzeRequest, error) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, caseflow.PermanentInput(fmt.Errorf("invalid request body: %w", err))
	}
	if req.CaseID == "" {
		return nil, caseflow.PermanentInput(errors.New("case_id is required"))
	}
	return &req, nil
}

// analyze runs the pipeline to the end within the request.
func (a *API) analyze(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAnalyze(r)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	st, err := a.orch.Run(r.Context(), req.CaseID, req.Options)
	if err != nil && st == nil {
		a.mapError(w, r, err)
		return
	}

	resp := AnalyzeResponse{CaseID: st.CaseID, Status: st.Status, Errors: st.Errors}
	if st.Status == state.StatusCompleted {
		resp.StageOutputs = st.StageOutputs
	}
	writeJSON(w, http.StatusOK, resp)
}

// analyzeAsync starts a background run and returns its run ID.
func (a *API) analyzeAsync(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAnalyze(r)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	drive, err := a.orch.Start(req.CaseID, req.Options)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	runID := a.track(req.CaseID)
	a.background(r.Context(), runID, req.CaseID, drive)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{RunID: runID.String(), CaseID: req.CaseID, Status: acceptedStatus})
}

// background drives a claimed run detached from the request's
// cancellation.
func (a *API) background(ctx context.Context, runID id.RunID, caseID string, drive orchestrator.DriveFunc) {
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.finish(runID)
		st, err := drive(ctx)
		if err != nil {
			a.logger.Error("background run failed to finish",
				slog.String("run_id", runID.String()),
				slog.String("case_id", caseID),
				slog.String("error", err.Error()),
			)
			return
		}
		a.logger.Info("background run finished",
			slog.String("run_id", runID.String()),
			slog.String("case_id", caseID),
			slog.String("status", string(st.Status)),
		)
	}()
}

// lookupRun resolves the {runId} path value to its case.
func (a *API) lookupRun(w http.ResponseWriter, r *http.Request) (id.RunID, string, bool) {
	runID, err := id.ParseRunID(r.PathValue("runId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid run ID: %v", err))
		return id.RunID{}, "", false
	}
	caseID, ok := a.caseFor(runID)
	if !ok {
		a.mapError(w, r, fmt.Errorf("%w: %s", caseflow.ErrRunNotFound, runID))
		return id.RunID{}, "", false
	}
	return runID, caseID, true
}

func (a *API) getRun(w http.ResponseWriter, r *http.Request) {
	runID, caseID, ok := a.lookupRun(w, r)
	if !ok {
		return
	}

	st, err := a.orch.GetStatus(r.Context(), caseID)
	if errors.Is(err, caseflow.ErrCheckpointNotFound) {
		writeJSON(w, http.StatusOK, RunStatusResponse{
			RunID: runID.String(), CaseID: caseID, Status: acceptedStatus,
			Active: a.orch.Active(caseID), Errors: []state.StageError{},
		})
		return
	}
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	updated := st.UpdatedAt
	writeJSON(w, http.StatusOK, RunStatusResponse{
		RunID:          runID.String(),
		CaseID:         caseID,
		Status:         string(st.Status),
		CurrentStage:   st.CurrentStage,
		NextStage:      st.NextStage,
		RetryCount:     st.RetryCount,
		CollectRetries: st.CollectRetries,
		Active:         st.Active,
		Errors:         st.Errors,
		UpdatedAt:      &updated,
	})
}

func (a *API) cancelRun(w http.ResponseWriter, r *http.Request) {
	_, caseID, ok := a.lookupRun(w, r)
	if !ok {
		return
	}
	if err := a.orch.Cancel(r.Context(), caseID); err != nil {
		a.mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resumeRun continues a paused run in the background under a new run ID.
func (a *API) resumeRun(w http.ResponseWriter, r *http.Request) {
	_, caseID, ok := a.lookupRun(w, r)
	if !ok {
		return
	}
	if _, err := a.orch.GetStatus(r.Context(), caseID); err != nil {
		a.mapError(w, r, err)
		return
	}
	drive, err := a.orch.StartResume(caseID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	runID := a.track(caseID)
	a.background(r.Context(), runID, caseID, drive)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{RunID: runID.String(), CaseID: caseID, Status: acceptedStatus})
}
