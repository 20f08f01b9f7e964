package retry

import (
	"context"
	"sync"
	"time"
)

// Sleeper waits out a backoff delay, allowing tests to override it.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DefaultSleeper is the production sleeper. It returns early when the
// context is cancelled.
var DefaultSleeper Sleeper = timerSleeper{}

// RecordingSleeper records requested delays without waiting.
type RecordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

// Sleep records d and returns immediately.
func (r *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

// Delays returns a copy of every recorded delay.
func (r *RecordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}
