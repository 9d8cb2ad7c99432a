// Package postgres persists the redelivery journal in PostgreSQL and owns the
// schema migrations for it. Queries go through store.DBTX, so a journal can
// be bound to a connection pool or to a single transaction.
package postgres
