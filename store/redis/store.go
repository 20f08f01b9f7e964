package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/id"
	"github.com/xraph/caseflow/state"
	"github.com/xraph/caseflow/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCodec selects the serialization used for new snapshots.
func WithCodec(c checkpoint.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	codec  checkpoint.Codec
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, codec: checkpoint.JSONCodec{}, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Checkpoint Store
// ──────────────────────────────────────────────────

// Save assigns the next sequence number and writes the snapshot and its
// index entry in one MULTI/EXEC transaction.
func (s *Store) Save(ctx context.Context, caseID string, st *state.WorkflowState) (id.CheckpointID, error) {
	data, err := s.codec.Encode(st)
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/redis: encode state: %w", err)
	}

	n, err := s.client.Incr(ctx, seqKey(caseID)).Result()
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/redis: next sequence: %w", err)
	}
	seq := uint64(n)
	cpID := id.NewCheckpointID()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, checkpointKey(caseID, seq),
		"id", cpID.String(),
		"case_id", caseID,
		"seq", strconv.FormatUint(seq, 10),
		"stage", st.CurrentStage,
		"status", string(st.Status),
		"codec", s.codec.Name(),
		"state", data,
		"created_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.ZAdd(ctx, checkpointIndexKey(caseID), goredis.Z{Score: float64(seq), Member: seq})
	if _, err := pipe.Exec(ctx); err != nil {
		return id.Nil, fmt.Errorf("caseflow/redis: save checkpoint: %w", err)
	}
	return cpID, nil
}

// Latest returns the highest-sequence snapshot for caseID.
func (s *Store) Latest(ctx context.Context, caseID string) (*checkpoint.Checkpoint, error) {
	members, err := s.client.ZRevRange(ctx, checkpointIndexKey(caseID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("caseflow/redis: latest checkpoint: %w", err)
	}
	if len(members) == 0 {
		return nil, caseflow.ErrCheckpointNotFound
	}
	return s.get(ctx, caseID, members[0])
}

// List returns every snapshot for caseID ordered by sequence.
func (s *Store) List(ctx context.Context, caseID string) ([]*checkpoint.Checkpoint, error) {
	members, err := s.client.ZRange(ctx, checkpointIndexKey(caseID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("caseflow/redis: list checkpoints: %w", err)
	}

	out := make([]*checkpoint.Checkpoint, 0, len(members))
	for _, m := range members {
		cp, getErr := s.get(ctx, caseID, m)
		if getErr != nil {
			return nil, getErr
		}
		out = append(out, cp)
	}
	return out, nil
}

// Clear deletes every snapshot and the index for caseID. The counter is
// kept so sequence numbers are never reused.
func (s *Store) Clear(ctx context.Context, caseID string) error {
	members, err := s.client.ZRange(ctx, checkpointIndexKey(caseID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("caseflow/redis: clear checkpoints: %w", err)
	}

	keys := make([]string, 0, len(members)+1)
	keys = append(keys, checkpointIndexKey(caseID))
	for _, m := range members {
		seq, parseErr := strconv.ParseUint(m, 10, 64)
		if parseErr != nil {
			continue
		}
		keys = append(keys, checkpointKey(caseID, seq))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("caseflow/redis: clear checkpoints: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, caseID, member string) (*checkpoint.Checkpoint, error) {
	seq, err := strconv.ParseUint(member, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("caseflow/redis: bad index member %q: %w", member, err)
	}
	vals, err := s.client.HGetAll(ctx, checkpointKey(caseID, seq)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, caseflow.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("caseflow/redis: get checkpoint: %w", err)
	}
	if len(vals) == 0 {
		return nil, caseflow.ErrCheckpointNotFound
	}

	cpID, err := id.ParseCheckpointID(vals["id"])
	if err != nil {
		return nil, fmt.Errorf("caseflow/redis: parse checkpoint id: %w", err)
	}
	st, err := checkpoint.GetCodec(vals["codec"]).Decode([]byte(vals["state"]))
	if err != nil {
		return nil, fmt.Errorf("caseflow/redis: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, vals["created_at"])

	return &checkpoint.Checkpoint{
		ID:        cpID,
		CaseID:    vals["case_id"],
		Seq:       seq,
		Stage:     vals["stage"],
		Status:    state.Status(vals["status"]),
		State:     st,
		CreatedAt: createdAt,
	}, nil
}
