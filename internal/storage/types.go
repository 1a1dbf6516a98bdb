package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": YAML document on disk
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled and subscriptions
// live in memory only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is the persisted state of one subscription context.
type Record struct {
	Enabled  bool     `json:"switch" yaml:"switch"`
	Projects []string `json:"projects" yaml:"projects"`
	ChatID   int64    `json:"chat_id" yaml:"chat_id"`
	ThreadID int      `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
}

// Document is the full persisted subscription registry, keyed by
// context key ("user:123", "group:-100456").
type Document struct {
	Contexts map[string]Record `json:"contexts" yaml:"contexts"`
}

func EmptyDocument() *Document {
	return &Document{Contexts: map[string]Record{}}
}
