package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore provides SQLite-based history storage
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite history store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS command_history (
		id TEXT PRIMARY KEY,
		command_id INTEGER NOT NULL,
		name TEXT DEFAULT '',
		command_line TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		return_code INTEGER NOT NULL,
		stdout TEXT DEFAULT '',
		stderr TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_history_end_time ON command_history(end_time);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts a history entry, assigning an ID when missing
func (s *SQLiteStore) Save(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_history (id, command_id, name, command_line, start_time, end_time, return_code, stdout, stderr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.CommandID, entry.Name, entry.CommandLine, entry.StartTime, entry.EndTime, entry.ReturnCode, entry.Stdout, entry.Stderr)

	return err
}

// Get retrieves a history entry by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	entry := &Entry{}

	err := s.db.QueryRowContext(ctx, `
		SELECT id, command_id, name, command_line, start_time, end_time, return_code, stdout, stderr
		FROM command_history WHERE id = ?
	`, id).Scan(&entry.ID, &entry.CommandID, &entry.Name, &entry.CommandLine, &entry.StartTime, &entry.EndTime, &entry.ReturnCode, &entry.Stdout, &entry.Stderr)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("history entry not found: %s", id)
	}
	return entry, err
}

// List returns the most recent entries, newest first
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command_id, name, command_line, start_time, end_time, return_code, stdout, stderr
		FROM command_history ORDER BY end_time DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		entry := &Entry{}
		err := rows.Scan(&entry.ID, &entry.CommandID, &entry.Name, &entry.CommandLine, &entry.StartTime, &entry.EndTime, &entry.ReturnCode, &entry.Stdout, &entry.Stderr)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
