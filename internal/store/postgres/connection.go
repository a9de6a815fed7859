// Package postgres implements the relational persistence ports (spec.md
// §6): products, idempotency, saga executions/step-results/history, and
// the transactional outbox. Grounded on the teacher's common/mpostgres
// connection wrapper and its per-repository SQL style (e.g.
// transaction.postgresql.go's tracer-wrapped ExecContext calls).
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cebartling/orderflow/internal/telemetry"
)

// Connection is a hub that deals with the primary Postgres connection,
// mirroring common/mpostgres.PostgresConnection without the
// replica/dbresolver layer the saga/command core doesn't need (see
// DESIGN.md).
type Connection struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int

	db *sql.DB
}

// Connect opens the pool and pings it.
func (c *Connection) Connect(ctx context.Context) error {
	logger := telemetry.LoggerFromContext(ctx)
	logger.Infow("connecting to postgres")

	db, err := sql.Open("pgx", c.DSN)
	if err != nil {
		return fmt.Errorf("postgres: open: %w", err)
	}

	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}

	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}

	c.db = db
	logger.Infow("connected to postgres")

	return nil
}

// DB returns the underlying pool.
func (c *Connection) DB() *sql.DB { return c.db }

// Close closes the pool.
func (c *Connection) Close() error {
	if c.db == nil {
		return nil
	}

	return c.db.Close()
}
