package session

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable session store. One database file is shared by
// every agent instance pointed at the same path, matching the shared-origin
// storage model: writes are last-writer-wins per session row.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the session database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			start_time INTEGER NOT NULL,
			last_activity INTEGER NOT NULL,
			page_view_count INTEGER NOT NULL DEFAULT 1,
			error_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.GetContext(ctx, &sess,
		`SELECT id, start_time, last_activity, page_view_count, error_count
		 FROM sessions WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) Put(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO sessions (id, start_time, last_activity, page_view_count, error_count)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		last_activity=excluded.last_activity,
		page_view_count=excluded.page_view_count,
		error_count=excluded.error_count;
	`, sess.ID, sess.StartTime, sess.LastActivity, sess.PageViewCount, sess.ErrorCount)
	if err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, cutoff int64) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE last_activity < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
