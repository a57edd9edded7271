package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MimeLyc/vn-script-translator/internal/jobs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps the pending queue and the history of processed files.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed.FS paths always use forward slashes
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) LoadQueue(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM queue_entries ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		ret = append(ret, path)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// SaveQueue replaces the stored queue with paths in one transaction.
func (s *SQLiteStore) SaveQueue(ctx context.Context, paths []string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM queue_entries`); err != nil {
		return err
	}
	for i, path := range paths {
		if _, err = tx.ExecContext(ctx, `INSERT INTO queue_entries (position, path) VALUES (?, ?)`, i, path); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) RecordResult(ctx context.Context, result *jobs.FileResult) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO file_results (
			id, run_id, path, status, error, encoding, lossy,
			total_lines, translated_lines, unchanged_lines, failed_segments, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			error=excluded.error,
			encoding=excluded.encoding,
			lossy=excluded.lossy,
			total_lines=excluded.total_lines,
			translated_lines=excluded.translated_lines,
			unchanged_lines=excluded.unchanged_lines,
			failed_segments=excluded.failed_segments,
			finished_at=excluded.finished_at`,
		result.ID,
		result.RunID,
		result.Path,
		string(result.Status),
		result.Error,
		result.Encoding,
		boolToInt(result.Lossy),
		result.TotalLines,
		result.TranslatedLines,
		result.UnchangedLines,
		result.FailedSegments,
		result.StartedAt.UTC(),
		result.FinishedAt.UTC(),
	)
	return err
}

// ListResults returns the most recent results first. A non-empty runID
// restricts the list to one run.
func (s *SQLiteStore) ListResults(ctx context.Context, runID string, limit int) ([]*jobs.FileResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, path, status, error, encoding, lossy,
			total_lines, translated_lines, unchanged_lines, failed_segments, started_at, finished_at
		 FROM file_results
		 WHERE (? = '' OR run_id = ?)
		 ORDER BY finished_at DESC, rowid DESC
		 LIMIT ?`,
		runID,
		runID,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.FileResult, 0)
	for rows.Next() {
		var item jobs.FileResult
		var status string
		var lossy int
		if err := rows.Scan(
			&item.ID,
			&item.RunID,
			&item.Path,
			&status,
			&item.Error,
			&item.Encoding,
			&lossy,
			&item.TotalLines,
			&item.TranslatedLines,
			&item.UnchangedLines,
			&item.FailedSegments,
			&item.StartedAt,
			&item.FinishedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		item.Lossy = lossy == 1
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
