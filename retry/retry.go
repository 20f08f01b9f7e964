// Package retry re-invokes a failing stage attempt with bounded backoff.
//
// A Policy decides which failure kinds are retried, how many attempts are
// made in total and how long to wait between them. Attempts are reported
// to the caller and the log, but never written into workflow state.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/backoff"
)

// DefaultRetryableKinds are the failure kinds retried when a Policy does
// not name its own.
var DefaultRetryableKinds = []caseflow.Kind{caseflow.KindTransient, caseflow.KindTimeout}

// Policy bounds retries for one stage.
type Policy struct {
	// MaxRetries is the total number of attempts, first attempt included.
	MaxRetries int

	// Backoff computes the sleep before retry n (1-indexed).
	Backoff backoff.Strategy

	// RetryableKinds lists the failure kinds that trigger another attempt.
	RetryableKinds []caseflow.Kind

	// AttemptTimeout bounds each attempt. Zero disables the bound.
	AttemptTimeout time.Duration
}

// Default returns the policy used when nothing else is configured:
// 3 attempts, sleeping 1s then 2s.
func Default() Policy {
	return FromConfig(caseflow.DefaultConfig())
}

// FromConfig builds a Policy from engine-wide defaults.
func FromConfig(cfg caseflow.Config) Policy {
	return Policy{
		MaxRetries:     cfg.MaxRetries,
		Backoff:        backoff.NewGeometric(cfg.BaseDelay, cfg.Multiplier, cfg.MaxDelay),
		RetryableKinds: slices.Clone(DefaultRetryableKinds),
		AttemptTimeout: cfg.AttemptTimeout,
	}
}

// Retryable reports whether a failure of kind k may be attempted again.
func (p Policy) Retryable(k caseflow.Kind) bool {
	kinds := p.RetryableKinds
	if kinds == nil {
		kinds = DefaultRetryableKinds
	}
	return slices.Contains(kinds, k)
}

// Attempt records one failed invocation.
type Attempt struct {
	Number int
	Kind   caseflow.Kind
	Err    error
	Delay  time.Duration
}

// Func is one attempt. attempt is 1-indexed.
type Func func(ctx context.Context, attempt int) error

type runConfig struct {
	stop    func() bool
	sleeper Sleeper
	logger  *slog.Logger
	onRetry func(Attempt)
	stage   string
}

// RunOption configures a single Run call.
type RunOption func(*runConfig)

// WithStop installs a cancellation hook consulted before every backoff sleep.
func WithStop(stop func() bool) RunOption {
	return func(c *runConfig) { c.stop = stop }
}

// WithSleeper overrides how backoff delays are waited out.
func WithSleeper(s Sleeper) RunOption {
	return func(c *runConfig) { c.sleeper = s }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) { c.logger = l }
}

// WithOnRetry registers a callback invoked after a failed attempt that
// will be retried, before the backoff sleep.
func WithOnRetry(fn func(Attempt)) RunOption {
	return func(c *runConfig) { c.onRetry = fn }
}

// WithStage names the stage in log lines.
func WithStage(name string) RunOption {
	return func(c *runConfig) { c.stage = name }
}

// Run invokes fn until it succeeds, fails with a non-retryable kind, or
// MaxRetries attempts have been made. The returned slice holds every
// failed attempt in order.
func (p Policy) Run(ctx context.Context, fn Func, opts ...RunOption) ([]Attempt, error) {
	cfg := runConfig{sleeper: DefaultSleeper, logger: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}

	maxAttempts := p.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	bo := p.Backoff
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}

	var attempts []Attempt
	for n := 1; ; n++ {
		err := p.invoke(ctx, fn, n)
		if err == nil {
			return attempts, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempts, fmt.Errorf("%w: %w", ctxErr, err)
		}

		kind := caseflow.KindOf(err)
		a := Attempt{Number: n, Kind: kind, Err: err}

		if !p.Retryable(kind) {
			attempts = append(attempts, a)
			return attempts, err
		}
		if n >= maxAttempts {
			attempts = append(attempts, a)
			return attempts, fmt.Errorf("%w after %d attempts: %w", caseflow.ErrMaxRetriesExceeded, n, err)
		}

		a.Delay = bo.Delay(n)
		attempts = append(attempts, a)

		cfg.logger.Warn("stage attempt failed, retrying",
			slog.String("stage", cfg.stage),
			slog.Int("attempt", n),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", a.Delay),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		if cfg.onRetry != nil {
			cfg.onRetry(a)
		}

		if cfg.stop != nil && cfg.stop() {
			return attempts, fmt.Errorf("%w: %w", caseflow.ErrCancelled, err)
		}
		if sleepErr := cfg.sleeper.Sleep(ctx, a.Delay); sleepErr != nil {
			return attempts, fmt.Errorf("%w: %w", sleepErr, err)
		}
		if cfg.stop != nil && cfg.stop() {
			return attempts, fmt.Errorf("%w: %w", caseflow.ErrCancelled, err)
		}
	}
}

// invoke runs one attempt under the per-attempt deadline. An attempt that
// overruns its own deadline is reported as a timeout even when the stage
// returned some other error.
func (p Policy) invoke(ctx context.Context, fn Func, n int) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx, n)
	}
	actx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()

	err := fn(actx, n)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		if caseflow.KindOf(err) != caseflow.KindTimeout {
			return caseflow.Timeout(err)
		}
	}
	return err
}
