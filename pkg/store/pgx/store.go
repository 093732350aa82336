// Package pgx implements the store interfaces on PostgreSQL with pgvector
// for page-embedding similarity search. Writes merge by natural key with
// ON CONFLICT upserts so reruns converge.
package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store implements store.GraphStore, store.VectorStore, and store.JobStore
// on a pgx connection or pool.
type Store struct {
	conn pgxIConn
}

// NewStoreWithConnection creates a Store using an existing connection or
// pool. pgvector types must be registered on the connection.
func NewStoreWithConnection(conn pgxIConn) *Store {
	return &Store{conn: conn}
}

const upsertChunk = 250
