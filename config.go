package caseflow

import (
	"fmt"
	"time"
)

// Config holds engine-wide defaults. Individual stages may override the
// retry fields at registration time.
type Config struct {
	// MaxRetries is the total number of attempts per stage (first attempt included).
	MaxRetries int

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration

	// Multiplier scales the delay between consecutive retries.
	Multiplier float64

	// MaxDelay caps a single backoff sleep. Zero means no cap.
	MaxDelay time.Duration

	// AttemptTimeout bounds each stage attempt. Zero disables the bound.
	AttemptTimeout time.Duration

	// MaxRecollect is how many times the completeness check may send the
	// pipeline back to data collection.
	MaxRecollect int

	// MaxParallel bounds concurrently running members of a parallel group.
	// Zero means unbounded.
	MaxParallel int

	// MaxSteps guards against routing cycles within a single Run or Resume.
	MaxSteps int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BaseDelay:      1 * time.Second,
		Multiplier:     2.0,
		MaxDelay:       1 * time.Minute,
		AttemptTimeout: 60 * time.Second,
		MaxRecollect:   2,
		MaxParallel:    0,
		MaxSteps:       64,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 1:
		return fmt.Errorf("caseflow: max retries must be >= 1, got %d", c.MaxRetries)
	case c.BaseDelay < 0:
		return fmt.Errorf("caseflow: base delay must not be negative")
	case c.Multiplier < 1:
		return fmt.Errorf("caseflow: multiplier must be >= 1, got %v", c.Multiplier)
	case c.MaxRecollect < 0:
		return fmt.Errorf("caseflow: max recollect must not be negative")
	case c.MaxSteps < 1:
		return fmt.Errorf("caseflow: max steps must be >= 1, got %d", c.MaxSteps)
	}
	return nil
}
