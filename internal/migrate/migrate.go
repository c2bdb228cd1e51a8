// Package migrate applies sequential schema migrations to on-disk data,
// upgrading the daemon config and the settings store from one version to
// the next.
package migrate

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades raw file bytes to [Migration.Version].
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short human-readable label for log output.
	Description string
	// Upgrade transforms data from the prior version to Version.
	Upgrade func(data []byte) ([]byte, error)
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Run applies migrations in version order, skipping those at or below
// fromVersion. It returns the transformed data and the version reached. On
// failure the version of the last successful step is returned with the error.
func Run(data []byte, fromVersion int, migrations []Migration) ([]byte, int, error) {
	ordered := slices.Clone(migrations)
	slices.SortStableFunc(ordered, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	version := fromVersion
	for _, m := range ordered {
		if m.Version <= version {
			continue
		}
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		out, err := m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		data = out
		version = m.Version
	}
	return data, version, nil
}

// NeedsMigration reports whether a file at fileVersion would be touched given
// currentVersion and the registered migrations.
func NeedsMigration(fileVersion, currentVersion int, migrations []Migration) bool {
	if fileVersion != currentVersion {
		return true
	}
	return slices.ContainsFunc(migrations, func(m Migration) bool {
		return fileVersion < m.Version
	})
}

// PeekJSONVersion reads the "$version" key of a JSON document. Files written
// before versioning existed have no key and report version 1.
func PeekJSONVersion(data []byte) (int, error) {
	var v struct {
		Version int `json:"$version"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("peek version: %w", err)
	}
	if v.Version == 0 {
		return 1, nil
	}
	return v.Version, nil
}
