// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - All loading functions accept context.Context as the first parameter.
package config

import (
	"context"
	"path/filepath"
)

// Default layout of the data directory. Paths left empty in the
// configuration are derived from DataDir using these names.
const (
	defaultDataDir     = "data"
	indexDirName       = "event_history_index"
	logFileName        = "event_history_by_event.ndjson"
	indexFileName      = "event_history_by_event.ndjson.index.json"
	calendarDirName    = "Economic_Calendar"
	defaultMemoSize    = 60
	defaultQueueSize   = 64
	defaultWorkers     = 1
	defaultRefreshSecs = 300
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DataDir is the root directory holding the history log, its index
	// and the calendar exports.
	DataDir string `koanf:"data_dir"`

	// LogPath overrides the NDJSON history log location.
	LogPath string `koanf:"log_path"`

	// IndexPath overrides the persisted offset index location.
	IndexPath string `koanf:"index_path"`

	// CalendarDir overrides the calendar export directory.
	CalendarDir string `koanf:"calendar_dir"`

	// MemoSize bounds the lookup result cache.
	MemoSize int `koanf:"memo_size"`

	// RefreshQueueSize bounds the in-memory refresh job queue.
	RefreshQueueSize int `koanf:"refresh_queue_size"`

	// RefreshWorkers sets the number of refresh workers.
	RefreshWorkers int `koanf:"refresh_workers"`

	// RefreshIntervalSeconds sets the periodic source check cadence.
	// Zero disables the ticker.
	RefreshIntervalSeconds int `koanf:"refresh_interval_seconds"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		DataDir:                defaultDataDir,
		MemoSize:               defaultMemoSize,
		RefreshQueueSize:       defaultQueueSize,
		RefreshWorkers:         defaultWorkers,
		RefreshIntervalSeconds: defaultRefreshSecs,
	}
}

// ResolvePaths fills LogPath, IndexPath and CalendarDir from DataDir when
// they were not set explicitly.
func (c *Config) ResolvePaths() {
	if c.LogPath == "" {
		c.LogPath = filepath.Join(c.DataDir, indexDirName, logFileName)
	}
	if c.IndexPath == "" {
		c.IndexPath = filepath.Join(c.DataDir, indexDirName, indexFileName)
	}
	if c.CalendarDir == "" {
		c.CalendarDir = filepath.Join(c.DataDir, calendarDirName)
	}
}
