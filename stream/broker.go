package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/caseflow/ext"
	"github.com/xraph/caseflow/state"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Broker)(nil)
	_ ext.RunStarted     = (*Broker)(nil)
	_ ext.RunCompleted   = (*Broker)(nil)
	_ ext.RunFailed      = (*Broker)(nil)
	_ ext.RunPaused      = (*Broker)(nil)
	_ ext.StageCompleted = (*Broker)(nil)
	_ ext.StageFailed    = (*Broker)(nil)
	_ ext.StageRetrying  = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker is the real-time stream broker. It implements the ext.Extension
// interface to receive lifecycle events and fans them out to subscribers
// via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:     NewTopicRegistry(),
		logger:     logger,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close()
	}
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish broadcasts evt to all matching topics.
func (b *Broker) publish(evt *Event) {
	topics := resolveTopics(evt)
	targets := b.topicSubscribers(topics)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
	if dropped := targets - delivered; dropped > 0 {
		b.totalDropped.Add(int64(dropped))
		b.logger.Debug("stream events dropped",
			slog.String("type", string(evt.Type)),
			slog.String("topic", evt.Topic),
			slog.Int("dropped", dropped),
		)
	}
}

func (b *Broker) topicSubscribers(topics []string) int {
	b.topics.mu.RLock()
	defer b.topics.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, t := range topics {
		for id := range b.topics.topics[t] {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

func runData(st *state.WorkflowState) RunEventData {
	return RunEventData{
		CaseID:       st.CaseID,
		Status:       string(st.Status),
		CurrentStage: st.CurrentStage,
		NextStage:    st.NextStage,
		Errors:       len(st.Errors),
	}
}

func (b *Broker) runEvent(t EventType, caseID string, data RunEventData) {
	b.publish(&Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Topic:     CaseTopic(caseID),
		Data:      mustMarshal(data),
	})
}

func (b *Broker) stageEvent(t EventType, data StageEventData) {
	b.publish(&Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Topic:     CaseTopic(data.CaseID),
		Data:      mustMarshal(data),
	})
}

// ── Run lifecycle hooks ─────────────────────────────

func (b *Broker) OnRunStarted(_ context.Context, st *state.WorkflowState, resumed bool) error {
	d := runData(st)
	d.Resumed = resumed
	b.runEvent(EventRunStarted, st.CaseID, d)
	return nil
}

func (b *Broker) OnRunCompleted(_ context.Context, st *state.WorkflowState, elapsed time.Duration) error {
	d := runData(st)
	d.ElapsedMs = elapsed.Milliseconds()
	b.runEvent(EventRunCompleted, st.CaseID, d)
	return nil
}

func (b *Broker) OnRunFailed(_ context.Context, st *state.WorkflowState, runErr error) error {
	d := runData(st)
	d.Error = runErr.Error()
	b.runEvent(EventRunFailed, st.CaseID, d)
	return nil
}

func (b *Broker) OnRunPaused(_ context.Context, st *state.WorkflowState) error {
	b.runEvent(EventRunPaused, st.CaseID, runData(st))
	return nil
}

// ── Stage lifecycle hooks ───────────────────────────

func (b *Broker) OnStageCompleted(_ context.Context, caseID, stage string, elapsed time.Duration) error {
	b.stageEvent(EventStageCompleted, StageEventData{CaseID: caseID, Stage: stage, ElapsedMs: elapsed.Milliseconds()})
	return nil
}

func (b *Broker) OnStageFailed(_ context.Context, caseID, stage string, stageErr error, fatal bool) error {
	b.stageEvent(EventStageFailed, StageEventData{CaseID: caseID, Stage: stage, Error: stageErr.Error(), Fatal: fatal})
	return nil
}

func (b *Broker) OnStageRetrying(_ context.Context, caseID, stage string, attempt int, delay time.Duration) error {
	b.stageEvent(EventStageRetrying, StageEventData{CaseID: caseID, Stage: stage, Attempt: attempt, DelayMs: delay.Milliseconds()})
	return nil
}
