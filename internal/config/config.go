// Package config provides configuration loading and defaults for the
// statuscord daemon.
//
// Configuration is loaded from a TOML file in the user's data directory. It
// covers the daemon's own wiring: the Discord application, the control-plane
// listener, the publisher's timing, the priority table, process
// auto-detection, the preset catalog, and logging. User-facing presence
// settings live in the settings store instead.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/statuscord/internal/atomicfile"
	"tools.zach/dev/statuscord/internal/autodetect"
	"tools.zach/dev/statuscord/internal/controlplane"
	"tools.zach/dev/statuscord/internal/migrate"
	"tools.zach/dev/statuscord/internal/paths"
	"tools.zach/dev/statuscord/internal/priority"
	"tools.zach/dev/statuscord/internal/publisher"
)

// DefaultDiscordAppID is the official statuscord Discord application ID.
const DefaultDiscordAppID = "1472319454909173911"

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level daemon configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Discord holds Discord connection settings.
	Discord DiscordConfig `toml:"discord"`
	// ControlPlane holds the plugin listener settings.
	ControlPlane ControlPlaneConfig `toml:"control_plane"`
	// AFK holds the system idle feed settings.
	AFK AFKConfig `toml:"afk"`
	// Publisher holds debounce and reconnect settings.
	Publisher PublisherConfig `toml:"publisher"`
	// Priority holds the ranks of the competing signals.
	Priority PriorityConfig `toml:"priority"`
	// AutoDetect holds process auto-detection settings.
	AutoDetect AutoDetectConfig `toml:"autodetect"`
	// Catalog holds the remote preset catalog settings.
	Catalog CatalogConfig `toml:"catalog"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// DiscordConfig holds Discord connection settings.
type DiscordConfig struct {
	// AppID is the Discord application ID for Rich Presence.
	AppID string `toml:"app_id"`
}

// ControlPlaneConfig holds the plugin listener settings.
type ControlPlaneConfig struct {
	// Addr is the loopback address the WebSocket server listens on.
	Addr string `toml:"addr"`
	// AllowedOrigins lists browser origins accepted besides loopback.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// AFKConfig holds the system idle feed settings.
type AFKConfig struct {
	// SystemIdleSeconds is how often OS idle time is sent to AFK plugins.
	// Zero disables the feed.
	SystemIdleSeconds int `toml:"system_idle_seconds"`
}

// PublisherConfig holds the activity publisher's timing.
type PublisherConfig struct {
	// DebounceMS is the window that collapses bursts of changes.
	DebounceMS int `toml:"debounce_ms"`
	// ShortDelaySeconds is the reconnect delay for the first ShortAttempts failures.
	ShortDelaySeconds int `toml:"short_delay_seconds"`
	// LongDelaySeconds is the reconnect delay after that.
	LongDelaySeconds int `toml:"long_delay_seconds"`
	// ShortAttempts is the number of failures retried at the short delay.
	ShortAttempts int `toml:"short_attempts"`
	// MaxAttempts bounds consecutive failures before giving up.
	MaxAttempts int `toml:"max_attempts"`
}

// PriorityConfig holds signal ranks. Lower wins.
type PriorityConfig struct {
	AutoDetect   int `toml:"auto_detect"`
	ManualPreset int `toml:"manual_preset"`
	Default      int `toml:"default"`
}

// AutoDetectConfig holds process auto-detection settings.
type AutoDetectConfig struct {
	// IntervalSeconds is the process list poll interval.
	IntervalSeconds int `toml:"interval_seconds"`
	// Rules map process name globs to preset names. First match wins.
	Rules []autodetect.Rule `toml:"rules"`
}

// CatalogConfig holds settings for the remote preset catalog.
type CatalogConfig struct {
	// Enabled turns catalog fetching on.
	Enabled bool `toml:"enabled"`
	// URL overrides the default catalog location.
	URL string `toml:"url,omitempty"`
	// File loads the catalog from a local file instead of URL.
	File string `toml:"file,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	table := priority.DefaultTable()
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Discord: DiscordConfig{
			AppID: DefaultDiscordAppID,
		},
		ControlPlane: ControlPlaneConfig{
			Addr:           controlplane.DefaultAddr,
			AllowedOrigins: append([]string(nil), controlplane.DefaultAllowedOrigins...),
		},
		AFK: AFKConfig{
			SystemIdleSeconds: 30,
		},
		Publisher: PublisherConfig{
			DebounceMS:        int(publisher.DefaultDebounce / time.Millisecond),
			ShortDelaySeconds: int(publisher.DefaultShortDelay / time.Second),
			LongDelaySeconds:  int(publisher.DefaultLongDelay / time.Second),
			ShortAttempts:     publisher.DefaultShortAttempts,
			MaxAttempts:       publisher.DefaultMaxAttempts,
		},
		Priority: PriorityConfig{
			AutoDetect:   table[priority.AutoDetect],
			ManualPreset: table[priority.ManualPreset],
			Default:      table[priority.Default],
		},
		AutoDetect: AutoDetectConfig{
			IntervalSeconds: int(autodetect.DefaultInterval / time.Second),
			Rules:           []autodetect.Rule{},
		},
		Catalog: CatalogConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Example Configuration
// ///////////////////////////////////////////////

// ExampleConfig returns a Config suitable for generating config.default.toml.
// It adds a few auto-detect rules so the array-of-tables layout is visible.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.AutoDetect.Rules = []autodetect.Rule{
		{Pattern: "code", Preset: "Coding"},
		{Pattern: "steam*", Preset: "Gaming"},
	}
	return cfg
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	shouldMigrate := migrate.Config.NeedsMigration(version)
	if shouldMigrate {
		if err := atomicfile.Backup(path, ".bak"); err != nil {
			slog.Warn("failed to write config backup", "error", err)
		}
		data, _, err = migrate.Config.Run(data, version)
		if err != nil {
			return nil, fmt.Errorf("migrate config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if shouldMigrate {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}

	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.AppID) == "" {
		return fmt.Errorf("discord.app_id must not be empty")
	}

	if strings.TrimSpace(c.ControlPlane.Addr) == "" {
		return fmt.Errorf("control_plane.addr must not be empty")
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	if c.AFK.SystemIdleSeconds < 0 {
		return fmt.Errorf("afk.system_idle_seconds must be >= 0, got %d", c.AFK.SystemIdleSeconds)
	}

	p := c.Publisher
	if p.DebounceMS <= 0 {
		return fmt.Errorf("publisher.debounce_ms must be > 0, got %d", p.DebounceMS)
	}
	if p.ShortDelaySeconds <= 0 || p.LongDelaySeconds <= 0 {
		return fmt.Errorf("publisher delays must be > 0, got %d and %d", p.ShortDelaySeconds, p.LongDelaySeconds)
	}
	if p.ShortAttempts <= 0 || p.MaxAttempts < p.ShortAttempts {
		return fmt.Errorf("publisher.max_attempts (%d) must be >= short_attempts (%d) > 0", p.MaxAttempts, p.ShortAttempts)
	}

	if _, err := c.PriorityTable(); err != nil {
		return err
	}

	if c.AutoDetect.IntervalSeconds <= 0 {
		return fmt.Errorf("autodetect.interval_seconds must be > 0, got %d", c.AutoDetect.IntervalSeconds)
	}
	for _, r := range c.AutoDetect.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ///////////////////////////////////////////////
// Accessors
// ///////////////////////////////////////////////

// PriorityTable converts the [priority] section to a validated table.
func (c *Config) PriorityTable() (priority.Table, error) {
	t := priority.Table{
		priority.AutoDetect:   c.Priority.AutoDetect,
		priority.ManualPreset: c.Priority.ManualPreset,
		priority.Default:      c.Priority.Default,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// PublisherOptions returns publisher options for the [publisher] section.
func (c *Config) PublisherOptions() publisher.Options {
	return publisher.Options{
		Debounce:      time.Duration(c.Publisher.DebounceMS) * time.Millisecond,
		ShortDelay:    time.Duration(c.Publisher.ShortDelaySeconds) * time.Second,
		LongDelay:     time.Duration(c.Publisher.LongDelaySeconds) * time.Second,
		ShortAttempts: c.Publisher.ShortAttempts,
		MaxAttempts:   c.Publisher.MaxAttempts,
	}
}

// ServerOptions returns control-plane server options.
func (c *Config) ServerOptions() controlplane.ServerOptions {
	return controlplane.ServerOptions{
		Addr:           c.ControlPlane.Addr,
		AllowedOrigins: c.ControlPlane.AllowedOrigins,
	}
}

// SystemIdleInterval returns the idle feed interval, or zero when disabled.
func (c *Config) SystemIdleInterval() time.Duration {
	return time.Duration(c.AFK.SystemIdleSeconds) * time.Second
}

// AutoDetectInterval returns the process poll interval.
func (c *Config) AutoDetectInterval() time.Duration {
	return time.Duration(c.AutoDetect.IntervalSeconds) * time.Second
}
