// Package stream provides a real-time event broker for caseflow lifecycle
// events. It bridges the ext.Extension system to connected clients via
// topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Run events.
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"
	EventRunPaused    EventType = "run.paused"

	// Stage events.
	EventStageCompleted EventType = "stage.completed"
	EventStageFailed    EventType = "stage.failed"
	EventStageRetrying  EventType = "stage.retrying"
)

// Terminal reports whether t ends a run's event sequence.
func (t EventType) Terminal() bool {
	return t == EventRunCompleted || t == EventRunFailed || t == EventRunPaused
}

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the case channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// RunEventData is the payload for run lifecycle events.
type RunEventData struct {
	CaseID       string `json:"case_id"`
	Status       string `json:"status"`
	CurrentStage string `json:"current_stage,omitempty"`
	NextStage    string `json:"next_stage,omitempty"`
	Resumed      bool   `json:"resumed,omitempty"`
	Errors       int    `json:"errors"`
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`
	Error        string `json:"error,omitempty"`
}

// StageEventData is the payload for stage lifecycle events.
type StageEventData struct {
	CaseID    string `json:"case_id"`
	Stage     string `json:"stage"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
	Fatal     bool   `json:"fatal,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	DelayMs   int64  `json:"delay_ms,omitempty"`
}
