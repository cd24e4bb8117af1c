package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS access_log (
	id            TEXT PRIMARY KEY,
	time          INTEGER NOT NULL,
	listener      TEXT NOT NULL,
	host          TEXT NOT NULL,
	method        TEXT NOT NULL,
	path          TEXT NOT NULL,
	status        INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	bytes_written INTEGER NOT NULL,
	client_addr   TEXT NOT NULL,
	backend       TEXT,
	request_id    TEXT
);
CREATE INDEX IF NOT EXISTS idx_access_log_time ON access_log(time);
CREATE INDEX IF NOT EXISTS idx_access_log_host ON access_log(host);
`

// SQLiteSink persists access records in a SQLite database. The driver is
// pure Go, keeping the ingress binary cgo-free.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteSink opens (creating if necessary) the database at path, enables
// WAL mode, and ensures the schema exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating access-log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening access-log database: %w", err)
	}

	// One writer goroutine feeds this sink; a single connection avoids
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing access-log schema: %w", err)
	}

	s := &SQLiteSink{
		db:     db,
		logger: slog.Default().With("component", "accesslog.sqlite"),
	}
	s.logger.Info("access-log database opened", "path", path)
	return s, nil
}

// Write inserts one record.
func (s *SQLiteSink) Write(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_log
		 (id, time, listener, host, method, path, status, duration_ms, bytes_written, client_addr, backend, request_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Time.UnixMilli(), rec.Listener, rec.Host, rec.Method, rec.Path,
		rec.Status, rec.DurationMs, rec.BytesWritten, rec.ClientAddr, rec.Backend, rec.RequestID,
	)
	return err
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Count returns the number of stored records.
func (s *SQLiteSink) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_log`).Scan(&n)
	return n, err
}

// PruneOlderThan deletes records with a start time before cutoff and
// returns how many were removed.
func (s *SQLiteSink) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM access_log WHERE time < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneToMaxRecords deletes the oldest records beyond the cap and returns
// how many were removed. A cap of zero is a no-op.
func (s *SQLiteSink) PruneToMaxRecords(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM access_log WHERE id IN (
			SELECT id FROM access_log ORDER BY time DESC LIMIT -1 OFFSET ?
		 )`, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
