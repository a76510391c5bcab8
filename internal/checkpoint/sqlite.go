package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("checkpoint store is closed")

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	mu      sync.RWMutex
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite checkpoint store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(60000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS files (
		site_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		last_error TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (site_id, path)
	);

	CREATE INDEX IF NOT EXISTS idx_files_status ON files(site_id, status);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// GetFile retrieves a file record, or nil if the file was never recorded
func (s *SQLiteStore) GetFile(siteID int, path string) (*FileRecord, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	var result *FileRecord
	err := s.retryOnBusy(func() error {
		var err error
		result, err = s.getFileInternal(siteID, path)
		return err
	})
	return result, err
}

func (s *SQLiteStore) getFileInternal(siteID int, path string) (*FileRecord, error) {
	query := `
	SELECT site_id, path, size, status, attempts, last_error, updated_at
	FROM files WHERE site_id = ? AND path = ?
	`

	record, err := scanRecord(s.db.QueryRow(query, siteID, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*FileRecord, error) {
	var record FileRecord
	var lastError sql.NullString

	err := row.Scan(
		&record.SiteID,
		&record.Path,
		&record.Size,
		&record.Status,
		&record.Attempts,
		&lastError,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastError.Valid {
		record.LastError = lastError.String
	}
	return &record, nil
}

// SaveFile saves or updates a file record. Attempts accumulate across saves.
func (s *SQLiteStore) SaveFile(record *FileRecord) error {
	if s.isClosed() {
		return ErrClosed
	}

	// Serialize writes to avoid SQLITE_BUSY from multiple concurrent writers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.saveFileWithTransaction(record)
	})
}

func (s *SQLiteStore) saveFileWithTransaction(record *FileRecord) error {
	record.UpdatedAt = time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO files
	(site_id, path, size, status, attempts, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(site_id, path) DO UPDATE SET
		size = excluded.size,
		status = excluded.status,
		attempts = files.attempts + excluded.attempts,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`

	_, err = tx.Exec(query,
		record.SiteID,
		record.Path,
		record.Size,
		record.Status,
		record.Attempts,
		record.LastError,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to execute insert: %w", err)
	}

	return tx.Commit()
}

// retryOnBusy retries the operation if SQLite is busy
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	maxRetries := 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil || !isSQLiteBusyError(err) {
			return err
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		jitter := time.Duration(attempt*10) * time.Millisecond
		time.Sleep(delay + jitter)
	}

	return err
}

// isSQLiteBusyError checks if the error is a SQLite busy error
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// ListFailedFiles returns all failed files for a site, oldest first
func (s *SQLiteStore) ListFailedFiles(siteID int) ([]*FileRecord, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	query := `
	SELECT site_id, path, size, status, attempts, last_error, updated_at
	FROM files WHERE site_id = ? AND status = ?
	ORDER BY updated_at ASC, path ASC
	`

	rows, err := s.db.Query(query, siteID, StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*FileRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// CountByStatus counts recorded files of a site with the given status
func (s *SQLiteStore) CountByStatus(siteID int, status FileStatus) (int64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}

	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM files WHERE site_id = ? AND status = ?`, siteID, status).Scan(&count)
	return count, err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
