// Package dbmanager manages the PostgreSQL connection pool for the license
// database. Each request checks out one connection, uses it for every store
// operation in that request, and returns it on completion; per-key claim
// atomicity comes from row locking inside the database, not from the pool.
package dbmanager

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"
)

// Pool is a managed database connection pool.
type Pool interface {
	// Conn returns a new connection from the pool.
	Conn(ctx context.Context) (Conn, error)
	// Stats returns the number of connection requests and returns.
	Stats() (requests, returns uint64)
}

// Conn is a single checked-out connection. It is not concurrency safe and
// must be used from one goroutine; the server uses one connection per request
// and does not spawn further goroutines.
type Conn interface {
	// Conn returns the underlying *sql.Conn. Do not close this directly;
	// use Close(ctx) so the pool's accounting stays correct.
	Conn() *sql.Conn
	// Close returns the connection back to the pool.
	Close(ctx context.Context)
}

// NewPool returns a connection pool for the given database type. Only
// "postgresql" is supported.
func NewPool(ctx context.Context, dbtype string) Pool {
	switch dbtype {
	case "postgresql":
		pool, err := NewPostgresqlPool()
		if err != nil || pool == nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to create PostgreSQL pool")
			return nil
		}
		return pool
	}
	return nil
}
