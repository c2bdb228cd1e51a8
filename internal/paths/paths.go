// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile          = "daemon.pid"
	ConfigFile       = "config.toml"
	SettingsFile     = "settings.json"
	LogFile          = "daemon.log"
	AgentPIDFile     = "afkagent.pid"
	AgentLogFile     = "afkagent.log"
	AgentConfigFile  = "afkagent.json"
	CatalogCacheFile = "presets-cache.json"
)

// Binary and directory names.
const (
	BinaryName = "statuscord"
	DataDirRel = ".statuscord" // relative to $HOME
)

// Remote-fetched file paths (relative to repo root).
const (
	CatalogDataPath = "data/presets.json"
	ReleaseManifest = ".release-manifest.json"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Settings returns the full path to the persisted settings store.
func (d DataDir) Settings() string { return filepath.Join(d.Root, SettingsFile) }

// Log returns the full path to the daemon log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// AgentPID returns the full path to the AFK agent's PID file.
func (d DataDir) AgentPID() string { return filepath.Join(d.Root, AgentPIDFile) }

// AgentLog returns the full path to the AFK agent log file.
func (d DataDir) AgentLog() string { return filepath.Join(d.Root, AgentLogFile) }

// AgentConfig returns the full path to the AFK agent's own config file.
func (d DataDir) AgentConfig() string { return filepath.Join(d.Root, AgentConfigFile) }

// CatalogCache returns the full path to the preset catalog cache file.
func (d DataDir) CatalogCache() string { return filepath.Join(d.Root, CatalogCacheFile) }
