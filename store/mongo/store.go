package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/id"
	"github.com/xraph/caseflow/state"
	"github.com/xraph/caseflow/store"
)

// Collection name constants.
const (
	colCheckpoints = "caseflow_checkpoints"
	colCounters    = "caseflow_counters"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	db     *mongod.Database
	codec  checkpoint.Codec
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithCodec selects the serialization used for new snapshots.
func WithCodec(c checkpoint.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// New creates a new MongoDB store on db.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		codec:  checkpoint.JSONCodec{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates the checkpoint indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Collection(colCheckpoints).Indexes().CreateMany(ctx, []mongod.IndexModel{
		{
			Keys:    bson.D{{Key: "case_id", Value: 1}, {Key: "seq", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("caseflow/mongo: migrate %s indexes: %w", colCheckpoints, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op; the caller owns the client.
func (s *Store) Close() error {
	return nil
}

// ──────────────────────────────────────────────────
// Checkpoint Store
// ──────────────────────────────────────────────────

// Save reserves the next sequence number and inserts the snapshot as a
// single document.
func (s *Store) Save(ctx context.Context, caseID string, st *state.WorkflowState) (id.CheckpointID, error) {
	data, err := s.codec.Encode(st)
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/mongo: encode state: %w", err)
	}

	var counter counterModel
	err = s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": caseID},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/mongo: next sequence: %w", err)
	}

	cpID := id.NewCheckpointID()
	_, err = s.db.Collection(colCheckpoints).InsertOne(ctx, checkpointModel{
		ID:        cpID.String(),
		CaseID:    caseID,
		Seq:       counter.Seq,
		Stage:     st.CurrentStage,
		Status:    string(st.Status),
		Codec:     s.codec.Name(),
		State:     data,
		CreatedAt: now(),
	})
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/mongo: save checkpoint: %w", err)
	}
	return cpID, nil
}

// Latest returns the highest-sequence snapshot for caseID.
func (s *Store) Latest(ctx context.Context, caseID string) (*checkpoint.Checkpoint, error) {
	var m checkpointModel
	err := s.db.Collection(colCheckpoints).FindOne(ctx,
		bson.M{"case_id": caseID},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, caseflow.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("caseflow/mongo: latest checkpoint: %w", err)
	}
	return fromModel(&m)
}

// List returns every snapshot for caseID ordered by sequence.
func (s *Store) List(ctx context.Context, caseID string) ([]*checkpoint.Checkpoint, error) {
	cursor, err := s.db.Collection(colCheckpoints).Find(ctx,
		bson.M{"case_id": caseID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("caseflow/mongo: list checkpoints: %w", err)
	}
	defer cursor.Close(ctx)

	var models []checkpointModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("caseflow/mongo: list checkpoints decode: %w", err)
	}

	out := make([]*checkpoint.Checkpoint, 0, len(models))
	for i := range models {
		cp, convErr := fromModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, cp)
	}
	return out, nil
}

// Clear deletes every snapshot for caseID. The counter is kept so
// sequence numbers are never reused.
func (s *Store) Clear(ctx context.Context, caseID string) error {
	if _, err := s.db.Collection(colCheckpoints).DeleteMany(ctx, bson.M{"case_id": caseID}); err != nil {
		return fmt.Errorf("caseflow/mongo: clear checkpoints: %w", err)
	}
	return nil
}

func fromModel(m *checkpointModel) (*checkpoint.Checkpoint, error) {
	cpID, err := id.ParseCheckpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("caseflow/mongo: parse checkpoint id: %w", err)
	}
	st, err := checkpoint.GetCodec(m.Codec).Decode(m.State)
	if err != nil {
		return nil, fmt.Errorf("caseflow/mongo: %w", err)
	}
	return &checkpoint.Checkpoint{
		ID:        cpID,
		CaseID:    m.CaseID,
		Seq:       uint64(m.Seq),
		Stage:     m.Stage,
		Status:    state.Status(m.Status),
		State:     st,
		CreatedAt: m.CreatedAt,
	}, nil
}

func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}
