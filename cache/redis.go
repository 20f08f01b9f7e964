package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/state"
)

var _ Cache = (*Redis)(nil)

// DefaultRedisPrefix namespaces result keys.
const DefaultRedisPrefix = "caseflow:result:"

// Redis is a Cache shared between processes. States are stored as
// single string values encoded with a checkpoint codec.
type Redis struct {
	client goredis.UniversalClient
	prefix string
	codec  checkpoint.Codec
}

// NewRedis returns a Redis cache. An empty prefix selects
// DefaultRedisPrefix; a nil codec selects JSON.
func NewRedis(client goredis.UniversalClient, prefix string, codec checkpoint.Codec) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if codec == nil {
		codec = checkpoint.JSONCodec{}
	}
	return &Redis{client: client, prefix: prefix, codec: codec}
}

func (r *Redis) key(caseID string) string { return r.prefix + caseID }

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, caseID string) (*state.WorkflowState, error) {
	data, err := r.client.Get(ctx, r.key(caseID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, caseflow.ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("caseflow/cache: get %s: %w", caseID, err)
	}
	return r.codec.Decode(data)
}

// Put implements Cache.
func (r *Redis) Put(ctx context.Context, st *state.WorkflowState, ttl time.Duration) error {
	data, err := r.codec.Encode(st)
	if err != nil {
		return fmt.Errorf("caseflow/cache: encode %s: %w", st.CaseID, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(st.CaseID), data, ttl).Err(); err != nil {
		return fmt.Errorf("caseflow/cache: put %s: %w", st.CaseID, err)
	}
	return nil
}
