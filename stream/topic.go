package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topic names follow a pattern:
//
//	case:<caseID>   events for a specific case
//	runs            all run lifecycle events
//	stages          all stage lifecycle events
//	firehose        everything
const (
	TopicRuns     = "runs"
	TopicStages   = "stages"
	TopicFirehose = "firehose"
)

// CaseTopic returns the topic name for a specific case.
func CaseTopic(caseID string) string { return "case:" + caseID }

// TopicRegistry manages subscriber sets per topic.
// It is safe for concurrent use.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber // topic → subscriberID → subscriber
}

// NewTopicRegistry creates an empty topic registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics: make(map[string]map[string]*Subscriber),
	}
}

// Subscribe adds a subscriber to a topic. Creates the topic if it
// doesn't exist.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.ID()] = sub
	sub.addTopic(topic)
}

// Unsubscribe removes a subscriber from a topic. Cleans up empty topics.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		return
	}
	if sub, exists := subs[subscriberID]; exists {
		sub.removeTopic(topic)
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(tr.topics, topic)
	}
}

// UnsubscribeAll removes a subscriber from all topics.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic, subs := range tr.topics {
		if sub, ok := subs[subscriberID]; ok {
			sub.removeTopic(topic)
			delete(subs, subscriberID)
		}
		if len(subs) == 0 {
			delete(tr.topics, topic)
		}
	}
}

// Broadcast sends an event to all subscribers on the listed topics,
// delivering once to subscribers that are on more than one of them.
// Returns the number of subscribers that received the event.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) int {
	tr.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, sub := range tr.topics[topic] {
			seen[id] = sub
		}
	}
	tr.mu.RUnlock()

	delivered := 0
	for _, sub := range seen {
		if sub.send(evt) {
			delivered++
		}
	}
	return delivered
}

// TopicCount returns the number of active topics.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}

// SubscriberCount returns the number of subscribers on a topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics[topic])
}

// resolveTopics returns all topics an event should be published to.
func resolveTopics(evt *Event) []string {
	topics := []string{TopicFirehose}

	switch {
	case strings.HasPrefix(string(evt.Type), "run."):
		topics = append(topics, TopicRuns)
	case strings.HasPrefix(string(evt.Type), "stage."):
		topics = append(topics, TopicStages)
	}
	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	return topics
}

// ParseTopicEntity extracts the entity type and ID from a topic string.
// For example, "case:2024-0042" returns ("case", "2024-0042").
// Returns ("", "") for global topics like "runs" or "firehose".
func ParseTopicEntity(topic string) (entityType, entityID string) {
	idx := strings.IndexByte(topic, ':')
	if idx < 0 {
		return "", ""
	}
	return topic[:idx], topic[idx+1:]
}

// ValidateTopic checks whether a topic string is valid.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicRuns, TopicStages, TopicFirehose:
		return nil
	}

	entityType, entityID := ParseTopicEntity(topic)
	if entityType != "case" || entityID == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	return nil
}
