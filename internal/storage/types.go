package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("journal closed")

// Config configures the journal.
//
// Driver values:
//   - "file": JSON Lines file at Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one journal record. Keep it compact and schema-stable.
type Entry struct {
	At        time.Time `json:"at"`
	Event     string    `json:"event"`
	BatchID   string    `json:"batch_id,omitempty"`
	ChatID    int64     `json:"chat_id,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Status    string    `json:"status,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	Preview   string    `json:"preview,omitempty"`
	ImagePath string    `json:"image_path,omitempty"`
	Error     string    `json:"error,omitempty"`
}
