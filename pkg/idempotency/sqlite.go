package idempotency

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store on a local SQLite database so replays
// survive process restarts. Suitable for single-instance deployments; a
// shared key-value service replaces it when the gateway runs replicated.
//
// The store uses WAL journaling for concurrent readers and a single writer
// connection, which matches SQLite's locking model.
type SQLiteStore struct {
	db *sql.DB

	getStmt   *sql.Stmt
	putStmt   *sql.Stmt
	sweepStmt *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports a single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS idempotency (
			principal  TEXT NOT NULL,
			endpoint   TEXT NOT NULL,
			key        TEXT NOT NULL,
			status     INTEGER NOT NULL,
			body       BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (principal, endpoint, key)
		);
		CREATE INDEX IF NOT EXISTS idx_idempotency_created
			ON idempotency (created_at);
	`)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`
		SELECT status, body, created_at FROM idempotency
		WHERE principal = ? AND endpoint = ? AND key = ?`)
	if err != nil {
		return err
	}

	// INSERT OR IGNORE gives first-writer-wins without a read-modify-write.
	s.putStmt, err = s.db.Prepare(`
		INSERT OR IGNORE INTO idempotency (principal, endpoint, key, status, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	s.sweepStmt, err = s.db.Prepare(`DELETE FROM idempotency WHERE created_at < ?`)
	return err
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, principal, endpoint, key string) (*Entry, bool, error) {
	var status int
	var body []byte
	var createdAt int64

	err := s.getStmt.QueryRowContext(ctx, principal, endpoint, key).Scan(&status, &body, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency get: %w", err)
	}

	entry := &Entry{
		Status:    status,
		Body:      body,
		CreatedAt: time.Unix(createdAt, 0),
	}
	if time.Since(entry.CreatedAt) > DefaultWindow {
		return nil, false, nil
	}
	return entry, true, nil
}

// Put implements Store; first writer wins.
func (s *SQLiteStore) Put(ctx context.Context, principal, endpoint, key string, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.putStmt.ExecContext(ctx, principal, endpoint, key, entry.Status, entry.Body, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("idempotency put: %w", err)
	}
	return nil
}

// Sweep implements Store.
func (s *SQLiteStore) Sweep(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window).Unix()

	res, err := s.sweepStmt.ExecContext(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("idempotency sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.putStmt, s.sweepStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}
