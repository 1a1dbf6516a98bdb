package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Monitor controls the sale-status poll cycle.
	Monitor MonitorConfig `json:"monitor"`

	// Notifier controls the async delivery pipeline. If the whole section is
	// omitted, the notifier defaults to enabled with conservative settings.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Storage  StorageConfig  `json:"storage"`
	Provider ProviderConfig `json:"provider"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is an optional chat id (as string) receiving warn/error logs.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	OpsChat LoggingOpsChat `json:"ops_chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingOpsChat struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// MonitorConfig controls the poll coordinator.
//
// Schedule accepts a Go duration ("30s"), HH:MM, or a cron expression
// ("*/1 * * * *"). Defaults to "30s" when omitted.
type MonitorConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`

	// FetchTimeout bounds a single provider request (Go duration string).
	FetchTimeout string `json:"fetch_timeout,omitempty"`

	// Concurrency caps the per-cycle parallel project fan-out.
	Concurrency int `json:"concurrency,omitempty"`

	// SeedContexts pre-enables the given context keys when the subscription
	// document does not exist yet (fresh install).
	SeedContexts []string `json:"seed_contexts,omitempty"`
}

// NotifierConfig mirrors the delivery pipeline knobs.
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}

// StorageConfig selects the subscription document backend.
//
// Driver values:
//   - "file": YAML document (default)
//   - "sqlite": SQLite database file (requires the sqlite build tag)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ProviderConfig points at the ticket API.
type ProviderConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}
