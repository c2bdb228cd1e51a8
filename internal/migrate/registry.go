package migrate

import "fmt"

// Registry holds the version and migrations for a single schema target.
// Each target gets its own instance so version numbers stay independent.
type Registry struct {
	// CurrentVersion is the latest schema version this registry targets.
	CurrentVersion int
	// Migrations is the list of versioned upgrades. Exported so tests can
	// swap it out.
	Migrations []Migration
}

// Register appends a migration. It panics on a duplicate version so
// conflicting registrations fail at init time.
func (r *Registry) Register(m Migration) {
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate migration version %d (description: %q)", m.Version, m.Description))
		}
	}
	if m.Version > r.CurrentVersion {
		panic(fmt.Sprintf("migrate: migration v%d is newer than current version %d", m.Version, r.CurrentVersion))
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a file at fileVersion needs upgrading.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return NeedsMigration(fileVersion, r.CurrentVersion, r.Migrations)
}

// Run applies registered migrations starting after fromVersion.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	return Run(data, fromVersion, r.Migrations)
}

// Config is the migration registry for config.toml.
var Config = &Registry{CurrentVersion: 1}

// Settings is the migration registry for settings.json. Version 2 folded the
// legacy blockedPlugins list into per-plugin state.
var Settings = &Registry{CurrentVersion: 2}
