// Package sqlite implements store.Store on database/sql with the
// mattn/go-sqlite3 driver. Suitable for the CLI, embedded deployments and
// single-node services.
//
//	s, err := sqlite.Open("caseflow.db")
//	if err != nil { ... }
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil { ... }
//
// Use NewFromDB to share an existing *sql.DB; the store then never closes it.
package sqlite
