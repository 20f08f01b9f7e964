// Package store defines the aggregate persistence interface implemented by
// every checkpoint backend: the checkpoint contract plus lifecycle methods.
package store

import (
	"context"

	"github.com/xraph/caseflow/checkpoint"
)

// Store is the aggregate persistence interface.
// A single backend (memory, file, sqlite, postgres, redis, mongo)
// implements all of it.
type Store interface {
	checkpoint.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store.
	Close() error
}
