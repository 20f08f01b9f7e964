// Package backoff provides pluggable delay strategies for stage retries.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear increases the delay linearly with the attempt number.
// Delay = min(Initial * attempt, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * attempt, capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	d := l.Initial * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
// This prevents thundering herd when many retries happen simultaneously.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Geometric
// ──────────────────────────────────────────────────

// Geometric grows the delay by an arbitrary multiplier.
// Delay = min(Base * Multiplier^(attempt-1), Max).
type Geometric struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// NewGeometric creates a geometric backoff strategy.
func NewGeometric(base time.Duration, multiplier float64, maxDelay time.Duration) *Geometric {
	return &Geometric{Base: base, Multiplier: multiplier, Max: maxDelay}
}

// Delay returns Base * Multiplier^(attempt-1), capped at Max.
func (g *Geometric) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(g.Base) * math.Pow(g.Multiplier, float64(attempt-1))
	if g.Max > 0 && d > float64(g.Max) {
		return g.Max
	}
	return time.Duration(d)
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default stage backoff: 1s doubling per
// retry, capped at 1m.
func DefaultStrategy() Strategy {
	return NewGeometric(1*time.Second, 2, 1*time.Minute)
}

// Named strategy identifiers accepted by Parse.
const (
	NameConstant    = "constant"
	NameLinear      = "linear"
	NameExponential = "exponential"
	NameJitter      = "jitter"
	NameGeometric   = "geometric"
)

// Parse builds a strategy from its name. An empty name selects Geometric.
func Parse(name string, base time.Duration, multiplier float64, maxDelay time.Duration) (Strategy, error) {
	switch name {
	case NameGeometric, "":
		return NewGeometric(base, multiplier, maxDelay), nil
	case NameConstant:
		return NewConstant(base), nil
	case NameLinear:
		return NewLinear(base, maxDelay), nil
	case NameExponential:
		return NewExponential(base, maxDelay), nil
	case NameJitter:
		return NewExponentialWithJitter(base, maxDelay), nil
	default:
		return nil, fmt.Errorf("backoff: unknown strategy %q", name)
	}
}
