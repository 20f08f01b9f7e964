package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/id"
	"github.com/xraph/caseflow/state"
	"github.com/xraph/caseflow/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db     *sql.DB
	owned  bool
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

// Open opens (or creates) the database file at path. The returned store
// owns the connection and closes it on Close.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("caseflow/sqlite: open: %w", err)
	}
	// SQLite allows a single writer; serialising through one connection
	// avoids SQLITE_BUSY between concurrent savers.
	db.SetMaxOpenConns(1)

	s := NewFromDB(db, opts...)
	s.owned = true
	return s, nil
}

// NewFromDB wraps an existing database handle. The caller owns its lifecycle.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
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

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS caseflow_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("caseflow/sqlite: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("caseflow/sqlite: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied int
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM caseflow_migrations WHERE filename = ?`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("caseflow/sqlite: check migration %s: %w", entry.Name(), err)
		}
		if applied > 0 {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("caseflow/sqlite: read migration %s: %w", entry.Name(), readErr)
		}
		if _, execErr := s.db.ExecContext(ctx, string(data)); execErr != nil {
			return fmt.Errorf("caseflow/sqlite: execute migration %s: %w", entry.Name(), execErr)
		}
		if _, recErr := s.db.ExecContext(ctx,
			`INSERT INTO caseflow_migrations (filename, applied_at) VALUES (?, ?)`,
			entry.Name(), time.Now().UTC().Format(time.RFC3339Nano),
		); recErr != nil {
			return fmt.Errorf("caseflow/sqlite: record migration %s: %w", entry.Name(), recErr)
		}

		s.logger.Info("applied migration", "file", entry.Name())
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Checkpoint Store
// ──────────────────────────────────────────────────

// Save inserts the next snapshot for caseID. Sequence numbers come from
// caseflow_sequences, which Clear leaves untouched, so a cleared case never
// reuses an earlier number.
func (s *Store) Save(ctx context.Context, caseID string, st *state.WorkflowState) (id.CheckpointID, error) {
	data, err := s.codec.Encode(st)
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/sqlite: encode state: %w", err)
	}
	cpID := id.NewCheckpointID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	err = tx.QueryRowContext(ctx, nextSeqSQL, caseID).Scan(&seq)
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/sqlite: next sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO caseflow_checkpoints (id, case_id, seq, stage, status, codec, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cpID.String(), caseID, seq, st.CurrentStage, string(st.Status), s.codec.Name(), data,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/sqlite: save checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return id.Nil, fmt.Errorf("caseflow/sqlite: commit: %w", err)
	}
	return cpID, nil
}

const nextSeqSQL = `
	INSERT INTO caseflow_sequences (case_id, last_seq) VALUES (?, 1)
	ON CONFLICT (case_id) DO UPDATE SET last_seq = caseflow_sequences.last_seq + 1
	RETURNING last_seq`

const selectColumns = `id, case_id, seq, stage, status, codec, state, created_at`

// Latest returns the highest-sequence snapshot for caseID.
func (s *Store) Latest(ctx context.Context, caseID string) (*checkpoint.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM caseflow_checkpoints
		 WHERE case_id = ? ORDER BY seq DESC LIMIT 1`, caseID)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, caseflow.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("caseflow/sqlite: latest checkpoint: %w", err)
	}
	return cp, nil
}

// List returns every snapshot for caseID ordered by sequence.
func (s *Store) List(ctx context.Context, caseID string) ([]*checkpoint.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM caseflow_checkpoints
		 WHERE case_id = ? ORDER BY seq ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("caseflow/sqlite: list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		cp, scanErr := scanCheckpoint(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("caseflow/sqlite: list checkpoints scan: %w", scanErr)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("caseflow/sqlite: list checkpoints: %w", err)
	}
	return out, nil
}

// Clear deletes every snapshot for caseID. The case's sequence counter
// is kept.
func (s *Store) Clear(ctx context.Context, caseID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM caseflow_checkpoints WHERE case_id = ?`, caseID); err != nil {
		return fmt.Errorf("caseflow/sqlite: clear checkpoints: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (*checkpoint.Checkpoint, error) {
	var (
		cp        checkpoint.Checkpoint
		cpID      id.CheckpointID
		status    string
		codecName string
		data      []byte
		created   string
		seq       int64
	)
	if err := row.Scan(&cpID, &cp.CaseID, &seq, &cp.Stage, &status, &codecName, &data, &created); err != nil {
		return nil, err
	}
	st, err := checkpoint.GetCodec(codecName).Decode(data)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	cp.ID = cpID
	cp.Seq = uint64(seq)
	cp.Status = state.Status(status)
	cp.State = st
	cp.CreatedAt = createdAt
	return &cp, nil
}
