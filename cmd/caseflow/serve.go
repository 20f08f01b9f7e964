package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/caseflow/api"
)

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Grace period for in-flight requests")
	cmd.Flags().Duration("run-retention", api.DefaultRunRetention, "How long finished run IDs stay queryable")
	_ = a.v.BindPFlags(cmd.Flags())
	return cmd
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := a.setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	handler := api.New(e.orch, e.results, e.logger,
		api.WithEvents(e.events),
		api.WithRunRetention(a.v.GetDuration("run-retention")),
	)
	srv := &http.Server{
		Addr:              a.v.GetString("addr"),
		Handler:           handler.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return transportError(err)
		}
		return nil
	case <-ctx.Done():
	}

	e.logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.v.GetDuration("shutdown-timeout"))
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		e.logger.Warn("http shutdown", slog.String("error", err.Error()))
	}
	handler.CancelAll(sctx)
	handler.Wait()
	return nil
}
