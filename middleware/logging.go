package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/caseflow"
)

// Logging returns middleware that logs attempt start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		logger.Debug("stage attempt started",
			slog.String("case_id", inv.CaseID),
			slog.String("stage", inv.Stage),
			slog.Int("attempt", inv.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("stage attempt failed",
				slog.String("case_id", inv.CaseID),
				slog.String("stage", inv.Stage),
				slog.Int("attempt", inv.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("kind", string(caseflow.KindOf(err))),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("stage attempt completed",
				slog.String("case_id", inv.CaseID),
				slog.String("stage", inv.Stage),
				slog.Int("attempt", inv.Attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
