// Package persist is the durable store: a single-file SQLite database in
// WAL mode with one serialized writer. The scheduler owns batched writes;
// HTTP handlers only run short reads and small inserts.
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/opencity/server/internal/config"
	"go.uber.org/zap"
)

// DB wraps the sqlx handle.
type DB struct {
	Conn *sqlx.DB
	log  *zap.Logger
}

// Open opens (or creates) the store at cfg.Path and applies pragmas.
// Writes are serialized through a single connection: SQLite holds one
// writer anyway, and this keeps lock contention out of the Go side.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		cfg.Path, busy.Milliseconds())
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Path, err)
	}
	conn.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return &DB{Conn: conn, log: log}, nil
}

// OpenMemory opens a throwaway in-memory store, used by tests.
func OpenMemory(ctx context.Context, log *zap.Logger) (*DB, error) {
	return Open(ctx, config.DatabaseConfig{Path: ":memory:"}, log)
}

func (db *DB) Close() error {
	return db.Conn.Close()
}
