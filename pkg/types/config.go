package types

import (
	"errors"
	"time"
)

// Mode selects which backend serves the uniform adapter contract. The
// value is resolved once at process start by the caller (CLI flag, config
// file, or deployment policy); the storage layer never sniffs its
// environment.
type Mode string

// Supported backend modes.
const (
	// ModeLocal is the embedded SQL engine persisted as whole snapshots.
	ModeLocal Mode = "local"
	// ModePostgres is the remote relational store reached over HTTP.
	ModePostgres Mode = "postgres"
	// ModeDocument is the remote document store reached over HTTP.
	ModeDocument Mode = "mongodb"
	// ModeHybrid prefers the remote document store and falls back to
	// local, with runtime hot-switching.
	ModeHybrid Mode = "hybrid"
)

// Config validation errors.
var (
	ErrModeEmpty      = errors.New("mode must not be empty")
	ErrModeUnknown    = errors.New("unknown mode")
	ErrAPIBaseMissing = errors.New("api_base_url required for remote modes")
)

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Mode    Mode   `json:"mode" yaml:"mode"`
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Remote transport settings. Username and Password form the static
	// Basic-Auth credential pair expected by the execution server.
	APIBaseURL string `json:"api_base_url" yaml:"api_base_url"`
	Username   string `json:"username" yaml:"username"`
	Password   string `json:"password" yaml:"password"`

	// Snapshot persistence settings (embedded backend only).
	SnapshotKey      string        `json:"snapshot_key" yaml:"snapshot_key"`
	AutosaveInterval time.Duration `json:"autosave_interval" yaml:"autosave_interval"`

	// RedisAddr, when set, enables the alternate snapshot target used if
	// the data directory is unavailable.
	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`
}

// knownModes lists the modes that Validate accepts.
var knownModes = map[Mode]bool{
	ModeLocal:    true,
	ModePostgres: true,
	ModeDocument: true,
	ModeHybrid:   true,
}

// DefaultSnapshotKey names the snapshot blob when Config.SnapshotKey is empty.
const DefaultSnapshotKey = "stockpile.db"

// DefaultAutosaveInterval is the fixed autosave period when
// Config.AutosaveInterval is zero.
const DefaultAutosaveInterval = 30 * time.Second

// Validate checks that the Config is well-formed, returning a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.Mode == "" {
		return ErrModeEmpty
	}
	if !knownModes[c.Mode] {
		return ErrModeUnknown
	}
	if (c.Mode == ModePostgres || c.Mode == ModeDocument) && c.APIBaseURL == "" {
		return ErrAPIBaseMissing
	}
	return nil
}

// SnapshotKeyOrDefault returns the configured snapshot key or the default.
func (c Config) SnapshotKeyOrDefault() string {
	if c.SnapshotKey != "" {
		return c.SnapshotKey
	}
	return DefaultSnapshotKey
}

// AutosaveIntervalOrDefault returns the configured autosave interval or
// the default.
func (c Config) AutosaveIntervalOrDefault() time.Duration {
	if c.AutosaveInterval > 0 {
		return c.AutosaveInterval
	}
	return DefaultAutosaveInterval
}
