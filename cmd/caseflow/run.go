package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/auction"
	"github.com/xraph/caseflow/state"
)

// runSummary is printed to stdout when a command finishes a run.
type runSummary struct {
	CaseID         string                   `json:"case_id"`
	Status         state.Status             `json:"status"`
	CurrentStage   string                   `json:"current_stage"`
	NextStage      string                   `json:"next_stage,omitempty"`
	CollectRetries int                      `json:"collect_retries"`
	Errors         []state.StageError       `json:"errors"`
	StageOutputs   map[string]state.Payload `json:"stage_outputs,omitempty"`
}

func (a *app) newRunCmd() *cobra.Command {
	var (
		optionsJSON string
		forceReview bool
	)

	cmd := &cobra.Command{
		Use:   "run <case_id>",
		Short: "Analyse a case from the start",
		Long:  "Run the full pipeline for a case. Interrupting the command pauses the run at the next checkpoint; continue it with resume.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := runInput(optionsJSON, forceReview)
			if err != nil {
				return configError(err)
			}
			return a.drive(cmd.Context(), func(ctx context.Context, e *env) (*state.WorkflowState, error) {
				return e.orch.Run(ctx, args[0], input)
			})
		},
	}

	cmd.Flags().StringVar(&optionsJSON, "options", "", `Run options as JSON, e.g. {"user_settings":{"target_roi":0.2}}`)
	cmd.Flags().BoolVar(&forceReview, "force-review", false, "Send the case to red-team review regardless of its grade")
	return cmd
}

func (a *app) newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <case_id>",
		Short: "Continue a paused or interrupted case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.drive(cmd.Context(), func(ctx context.Context, e *env) (*state.WorkflowState, error) {
				return e.orch.Resume(ctx, args[0])
			})
		},
	}
}

func runInput(optionsJSON string, forceReview bool) (map[string]any, error) {
	input := map[string]any{}
	if optionsJSON != "" {
		if err := json.Unmarshal([]byte(optionsJSON), &input); err != nil {
			return nil, fmt.Errorf("parse --options: %w", err)
		}
	}
	if forceReview {
		input[auction.ForceReviewKey] = true
	}
	return input, nil
}

// drive runs fn with an interrupt-aware context, prints the summary and
// converts the final status into the exit code.
func (a *app) drive(parent context.Context, fn func(context.Context, *env) (*state.WorkflowState, error)) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := a.setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	st, err := fn(ctx, e)
	if st == nil {
		return startError(err)
	}
	if err != nil && !errors.Is(err, caseflow.ErrCancelled) {
		return transportError(err)
	}

	sum := runSummary{
		CaseID:         st.CaseID,
		Status:         st.Status,
		CurrentStage:   st.CurrentStage,
		NextStage:      st.NextStage,
		CollectRetries: st.CollectRetries,
		Errors:         st.Errors,
	}
	if st.Status == state.StatusCompleted {
		sum.StageOutputs = st.StageOutputs
	}
	if err := a.printJSON(sum); err != nil {
		return transportError(err)
	}
	return statusError(st.Status)
}

// startError classifies failures that happen before a run begins.
func startError(err error) error {
	switch {
	case caseflow.KindOf(err) == caseflow.KindPermanentInput,
		errors.Is(err, caseflow.ErrRunActive),
		errors.Is(err, caseflow.ErrInvalidState):
		return configError(err)
	case errors.Is(err, caseflow.ErrCheckpointNotFound):
		return &exitError{code: exitFailed, err: err}
	default:
		return transportError(err)
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
