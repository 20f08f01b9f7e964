// Package postgres implements the checkpoint store using pgx/v5 with raw
// SQL. Sequence numbers are assigned inside the insert under a per-case
// transaction-scoped advisory lock, and the schema ships as embedded SQL
// migrations.
package postgres
