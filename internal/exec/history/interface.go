// Package history persists finalized commands so past runs survive the
// registry purge.
package history

import (
	"context"
	"time"
)

// Entry is one finalized command as stored in history.
type Entry struct {
	ID          string    `json:"id"`
	CommandID   int       `json:"command_id"`
	Name        string    `json:"name,omitempty"`
	CommandLine string    `json:"command_line"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	ReturnCode  int       `json:"return_code"`
	Stdout      string    `json:"stdout,omitempty"`
	Stderr      string    `json:"stderr,omitempty"`
}

// Store defines the interface for history storage operations
type Store interface {
	Save(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, limit int) ([]*Entry, error)

	// Close closes the store (for database connections)
	Close() error
}
