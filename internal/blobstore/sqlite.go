package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps objects in a single SQLite table. It backs local and
// offline deployments where no cloud container is available.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS blobs (
		path TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create blobs table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) List(ctx context.Context, prefix, suffix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM blobs WHERE instr(path, ?) = 1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	return filterNames(names, prefix, suffix), nil
}

// Versions tags each object with its size and last write time.
func (s *SQLiteStore) Versions(ctx context.Context, prefix, suffix string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, length(data), updated_at FROM blobs WHERE instr(path, ?) = 1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("versions %q: %w", prefix, err)
	}
	defer rows.Close() //nolint:errcheck

	tags := map[string]string{}
	for rows.Next() {
		var (
			name    string
			size    int64
			updated string
		)
		if err := rows.Scan(&name, &size, &updated); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		tags[name] = fmt.Sprintf("%d@%s", size, updated)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("versions %q: %w", prefix, err)
	}
	return filterTags(tags, prefix, suffix), nil
}

func (s *SQLiteStore) Get(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE path = ?`, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return data, nil
}

func (s *SQLiteStore) Put(ctx context.Context, path string, data []byte, overwrite bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `INSERT INTO blobs (path, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	if !overwrite {
		query = `INSERT INTO blobs (path, data, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(path) DO NOTHING`
	}
	res, err := s.db.ExecContext(ctx, query, path, data, now)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	if !overwrite {
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("put %s: rows affected: %w", path, err)
		}
		if n == 0 {
			return fmt.Errorf("put %s: %w", path, ErrExists)
		}
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: rows affected: %w", path, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", path, ErrNotFound)
	}
	return nil
}

// sqlitePath strips the sqlite:// scheme from a backend URL.
func sqlitePath(url string) string {
	return strings.TrimPrefix(url, "sqlite://")
}
