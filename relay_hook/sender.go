package relayhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Event is what a Sender delivers.
type Event struct {
	Type      string    `json:"type"`
	CaseID    string    `json:"case_id"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data"`
}

// Sender delivers lifecycle events to an external channel.
type Sender interface {
	Send(ctx context.Context, evt *Event) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, evt *Event) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, evt *Event) error { return f(ctx, evt) }

// DefaultRedisChannel is the pub/sub channel used when none is given.
const DefaultRedisChannel = "caseflow:events"

// RedisSender publishes events as JSON on a Redis pub/sub channel.
type RedisSender struct {
	client  goredis.UniversalClient
	channel string
}

// NewRedisSender creates a sender publishing on channel.
func NewRedisSender(client goredis.UniversalClient, channel string) *RedisSender {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSender{client: client, channel: channel}
}

// Channel returns the pub/sub channel name.
func (s *RedisSender) Channel() string { return s.channel }

// Send implements Sender.
func (s *RedisSender) Send(ctx context.Context, evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("relayhook: marshal %s: %w", evt.Type, err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("relayhook: publish %s: %w", evt.Type, err)
	}
	return nil
}
