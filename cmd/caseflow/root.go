package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/caseflow"
)

// app holds per-invocation state shared by subcommands.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
}

func execute(ctx context.Context, args []string) int {
	return newApp(os.Stdout, os.Stderr).execute(ctx, args)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{v: viper.New(), stdout: stdout, stderr: stderr}
}

func (a *app) execute(ctx context.Context, args []string) int {
	cmd := a.newRootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	var ee *exitError
	if err != nil && (!errors.As(err, &ee) || ee.err != nil) {
		fmt.Fprintln(a.stderr, "caseflow:", err)
	}
	return exitCode(err)
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "caseflow",
		Short:         "Auction case analysis pipeline",
		Long:          "caseflow drives court-auction cases through collection, analysis, valuation, risk grading, bid strategy and reporting with checkpointed, resumable runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.initConfig()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	def := caseflow.DefaultConfig()
	pf := root.PersistentFlags()
	pf.String("config", "", "YAML config file")
	pf.String("store", "sqlite", "Checkpoint store: sqlite, memory, file, postgres, redis, mongo")
	pf.String("dsn", "", "Store location: file path, directory, connection string or URL")
	pf.String("mongo-db", "caseflow", "MongoDB database name")
	pf.String("codec", "json", "Snapshot codec: json or msgpack")
	pf.String("graph", "", "YAML graph file with stage overrides or a custom topology")
	pf.String("case-dir", "cases", "Directory of <case_id>.yaml case files")
	pf.String("report-dir", "reports", "Directory reports are written to")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.Bool("log-json", false, "Log as JSON")
	pf.Bool("audit", false, "Emit audit events to the log")
	pf.String("relay-redis", "", "Redis URL to publish lifecycle events to")
	pf.String("relay-channel", "caseflow:events", "Redis pub/sub channel for lifecycle events")
	pf.StringSlice("relay-events", nil, "Lifecycle events to publish, e.g. run.completed (default all)")
	pf.Duration("result-ttl", 24*time.Hour, "How long completed results stay cached")
	pf.StringToString("rate-limit", nil, "Per-stage attempt rate limit, e.g. collect=2")
	pf.Int("max-retries", def.MaxRetries, "Attempts per stage, first attempt included")
	pf.Duration("base-delay", def.BaseDelay, "Backoff before the first retry")
	pf.Float64("multiplier", def.Multiplier, "Backoff multiplier")
	pf.Duration("max-delay", def.MaxDelay, "Backoff cap")
	pf.Duration("attempt-timeout", def.AttemptTimeout, "Per-attempt deadline (0 disables)")
	pf.Int("max-recollect", def.MaxRecollect, "Re-collection attempts for incomplete case data")
	pf.Int("max-parallel", def.MaxParallel, "Concurrent members per parallel group (0 = unbounded)")
	pf.Int("max-steps", def.MaxSteps, "Node executions allowed per run")

	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		a.newRunCmd(),
		a.newResumeCmd(),
		a.newStatusCmd(),
		a.newServeCmd(),
		a.newGraphCmd(),
	)
	return root
}

func (a *app) initConfig() error {
	a.v.SetEnvPrefix("CASEFLOW")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if file := a.v.GetString("config"); file != "" {
		a.v.SetConfigFile(file)
		if err := a.v.ReadInConfig(); err != nil {
			return configError(fmt.Errorf("read config %s: %w", file, err))
		}
	}
	return nil
}

// engineConfig collects the engine settings from flags, env and file.
func (a *app) engineConfig() (caseflow.Config, error) {
	cfg := caseflow.Config{
		MaxRetries:     a.v.GetInt("max-retries"),
		BaseDelay:      a.v.GetDuration("base-delay"),
		Multiplier:     a.v.GetFloat64("multiplier"),
		MaxDelay:       a.v.GetDuration("max-delay"),
		AttemptTimeout: a.v.GetDuration("attempt-timeout"),
		MaxRecollect:   a.v.GetInt("max-recollect"),
		MaxParallel:    a.v.GetInt("max-parallel"),
		MaxSteps:       a.v.GetInt("max-steps"),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configError(err)
	}
	return cfg, nil
}

func (a *app) logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if a.v.GetBool("log-json") {
		return slog.New(slog.NewJSONHandler(a.stderr, opts))
	}
	return slog.New(slog.NewTextHandler(a.stderr, opts))
}
