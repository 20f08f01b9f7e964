// Package file implements store.Store on an afero filesystem. Each
// snapshot is one JSON document named by its zero-padded sequence number
// under a per-case directory, next to the case's sequence counter:
//
//	<root>/c_<escaped case id>/00000000000000000007.json
//	<root>/c_<escaped case id>/sequence
//
// The c_ prefix keeps ids such as "." and ".." inside the root.
//
// Documents are written to a temporary file and renamed into place, so a
// reader never observes a partial snapshot.
//
// Usage:
//
//	s := file.New(afero.NewOsFs(), "/var/lib/caseflow/checkpoints")
//	if err := s.Migrate(ctx); err != nil { ... }
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/id"
	"github.com/xraph/caseflow/state"
	"github.com/xraph/caseflow/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

const (
	docSuffix   = ".json"
	casePrefix  = "c_"
	counterName = "sequence"
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store keeps checkpoints as JSON documents on an afero.Fs.
type Store struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a file-backed store rooted at dir.
func New(fsys afero.Fs, dir string, opts ...Option) *Store {
	s := &Store{
		fs:     fsys,
		root:   dir,
		logger: slog.Default(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Migrate creates the root directory.
func (s *Store) Migrate(_ context.Context) error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("caseflow/file: create root: %w", err)
	}
	return nil
}

// Ping verifies the root directory is reachable.
func (s *Store) Ping(_ context.Context) error {
	if _, err := s.fs.Stat(s.root); err != nil {
		return fmt.Errorf("caseflow/file: stat root: %w", err)
	}
	return nil
}

// Close is a no-op; the caller owns the filesystem.
func (s *Store) Close() error { return nil }

type document struct {
	ID        id.CheckpointID `json:"id"`
	CaseID    string          `json:"case_id"`
	Seq       uint64          `json:"seq"`
	Stage     string          `json:"stage"`
	Status    state.Status    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	State     json.RawMessage `json:"state"`
}

// Save writes the next snapshot for caseID.
func (s *Store) Save(_ context.Context, caseID string, st *state.WorkflowState) (id.CheckpointID, error) {
	lock := s.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	dir := s.caseDir(caseID)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return id.Nil, fmt.Errorf("caseflow/file: create case dir: %w", err)
	}

	last, err := s.lastSeq(dir)
	if err != nil {
		return id.Nil, err
	}
	next := last + 1

	cp := checkpoint.New(next, st)
	cp.CaseID = caseID
	raw, err := checkpoint.JSONCodec{}.Encode(cp.State)
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/file: encode state: %w", err)
	}
	data, err := json.MarshalIndent(document{
		ID:        cp.ID,
		CaseID:    caseID,
		Seq:       cp.Seq,
		Stage:     cp.Stage,
		Status:    cp.Status,
		CreatedAt: cp.CreatedAt,
		State:     raw,
	}, "", "  ")
	if err != nil {
		return id.Nil, fmt.Errorf("caseflow/file: encode document: %w", err)
	}

	final := path.Join(dir, seqName(next))
	tmp := final + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return id.Nil, fmt.Errorf("caseflow/file: write snapshot: %w", err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return id.Nil, fmt.Errorf("caseflow/file: commit snapshot: %w", err)
	}
	if err := afero.WriteFile(s.fs, path.Join(dir, counterName), []byte(strconv.FormatUint(next, 10)), 0o644); err != nil {
		return id.Nil, fmt.Errorf("caseflow/file: write sequence: %w", err)
	}
	return cp.ID, nil
}

// Latest reads the highest-numbered snapshot for caseID.
func (s *Store) Latest(_ context.Context, caseID string) (*checkpoint.Checkpoint, error) {
	dir := s.caseDir(caseID)
	seqs, err := s.sequences(dir)
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return nil, caseflow.ErrCheckpointNotFound
	}
	return s.read(path.Join(dir, seqName(seqs[len(seqs)-1])))
}

// List reads every snapshot for caseID in ascending order.
func (s *Store) List(_ context.Context, caseID string) ([]*checkpoint.Checkpoint, error) {
	dir := s.caseDir(caseID)
	seqs, err := s.sequences(dir)
	if err != nil {
		return nil, err
	}
	out := make([]*checkpoint.Checkpoint, 0, len(seqs))
	for _, seq := range seqs {
		cp, readErr := s.read(path.Join(dir, seqName(seq)))
		if readErr != nil {
			return nil, readErr
		}
		out = append(out, cp)
	}
	return out, nil
}

// Clear removes every snapshot for caseID. The sequence counter stays so
// later saves keep counting upward.
func (s *Store) Clear(_ context.Context, caseID string) error {
	lock := s.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	dir := s.caseDir(caseID)
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("caseflow/file: clear case: %w", err)
	}
	for _, fi := range infos {
		if fi.Name() == counterName {
			continue
		}
		if err := s.fs.RemoveAll(path.Join(dir, fi.Name())); err != nil {
			return fmt.Errorf("caseflow/file: clear case: %w", err)
		}
	}
	return nil
}

// lastSeq is the highest sequence ever issued in dir: the larger of the
// counter file and the newest snapshot on disk.
func (s *Store) lastSeq(dir string) (uint64, error) {
	seqs, err := s.sequences(dir)
	if err != nil {
		return 0, err
	}
	var last uint64
	if len(seqs) > 0 {
		last = seqs[len(seqs)-1]
	}
	data, err := afero.ReadFile(s.fs, path.Join(dir, counterName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return last, nil
	case err != nil:
		return 0, fmt.Errorf("caseflow/file: read sequence: %w", err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("caseflow/file: parse sequence %q: %w", data, err)
	}
	return max(last, n), nil
}

func (s *Store) read(p string) (*checkpoint.Checkpoint, error) {
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, fmt.Errorf("caseflow/file: read snapshot: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("caseflow/file: decode document %s: %w", p, err)
	}
	st, err := checkpoint.JSONCodec{}.Decode(doc.State)
	if err != nil {
		return nil, fmt.Errorf("caseflow/file: %w", err)
	}
	return &checkpoint.Checkpoint{
		ID:        doc.ID,
		CaseID:    doc.CaseID,
		Seq:       doc.Seq,
		Stage:     doc.Stage,
		Status:    doc.Status,
		State:     st,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// sequences lists committed sequence numbers in dir in ascending order.
// Leftover temporary files are skipped.
func (s *Store) sequences(dir string) ([]uint64, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("caseflow/file: list snapshots: %w", err)
	}
	seqs := make([]uint64, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || !strings.HasSuffix(name, docSuffix) {
			continue
		}
		n, parseErr := strconv.ParseUint(strings.TrimSuffix(name, docSuffix), 10, 64)
		if parseErr != nil {
			s.logger.Warn("skipping unrecognised checkpoint file",
				slog.String("dir", dir),
				slog.String("file", name),
			)
			continue
		}
		seqs = append(seqs, n)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

func (s *Store) caseDir(caseID string) string {
	return path.Join(s.root, casePrefix+url.PathEscape(caseID))
}

func (s *Store) caseLock(caseID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[caseID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[caseID] = l
	}
	return l
}

func seqName(seq uint64) string {
	return fmt.Sprintf("%020d%s", seq, docSuffix)
}
