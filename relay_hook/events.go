package relayhook

import (
	"fmt"
	"strings"
)

// Lifecycle event types. Each constant maps to one ext lifecycle hook and
// is used as Event.Type when sending.
const (
	EventRunStarted     = "caseflow.run.started"
	EventRunCompleted   = "caseflow.run.completed"
	EventRunFailed      = "caseflow.run.failed"
	EventRunPaused      = "caseflow.run.paused"
	EventStageCompleted = "caseflow.stage.completed"
	EventStageFailed    = "caseflow.stage.failed"
	EventStageRetrying  = "caseflow.stage.retrying"
)

// Definition describes one event type for consumers of the channel.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Group       string `json:"group"`
	Version     string `json:"version"`
}

// AllDefinitions returns definitions for every lifecycle event type.
func AllDefinitions() []Definition {
	return []Definition{
		// ── Run events ──────────────────────────────────
		{
			Name:        EventRunStarted,
			Description: "Fired when a case run starts or resumes.",
			Group:       "runs",
			Version:     "2026-01-01",
		},
		{
			Name:        EventRunCompleted,
			Description: "Fired when a case run reaches the end of the pipeline.",
			Group:       "runs",
			Version:     "2026-01-01",
		},
		{
			Name:        EventRunFailed,
			Description: "Fired when a case run fails terminally.",
			Group:       "runs",
			Version:     "2026-01-01",
		},
		{
			Name:        EventRunPaused,
			Description: "Fired when a case run is cancelled and can be resumed.",
			Group:       "runs",
			Version:     "2026-01-01",
		},
		// ── Stage events ────────────────────────────────
		{
			Name:        EventStageCompleted,
			Description: "Fired after a stage produces its output.",
			Group:       "stages",
			Version:     "2026-01-01",
		},
		{
			Name:        EventStageFailed,
			Description: "Fired when a stage exhausts its attempts.",
			Group:       "stages",
			Version:     "2026-01-01",
		},
		{
			Name:        EventStageRetrying,
			Description: "Fired when a failed stage attempt is scheduled for retry.",
			Group:       "stages",
			Version:     "2026-01-01",
		},
	}
}

// ParseEvents resolves a list of event names. Short names without the
// "caseflow." prefix are accepted. Unknown names are an error.
func ParseEvents(names []string) ([]string, error) {
	known := make(map[string]bool)
	for _, def := range AllDefinitions() {
		known[def.Name] = true
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !strings.HasPrefix(n, "caseflow.") {
			n = "caseflow." + n
		}
		if !known[n] {
			return nil, fmt.Errorf("relayhook: unknown event %q", n)
		}
		out = append(out, n)
	}
	return out, nil
}
