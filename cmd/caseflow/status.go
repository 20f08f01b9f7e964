package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/xraph/caseflow"
)

func (a *app) newStatusCmd() *cobra.Command {
	var timeline bool

	cmd := &cobra.Command{
		Use:   "status <case_id>",
		Short: "Show the latest checkpoint of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if timeline {
				entries, err := e.orch.Timeline(cmd.Context(), args[0])
				if err != nil {
					return lookupError(err)
				}
				return a.printJSON(entries)
			}

			st, err := e.orch.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return lookupError(err)
			}
			return a.printJSON(st)
		},
	}

	cmd.Flags().BoolVar(&timeline, "timeline", false, "Print every checkpoint instead of the latest")
	return cmd
}

func lookupError(err error) error {
	if errors.Is(err, caseflow.ErrCheckpointNotFound) {
		return &exitError{code: exitFailed, err: err}
	}
	return transportError(err)
}
