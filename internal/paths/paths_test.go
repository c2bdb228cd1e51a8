package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

// ///////////////////////////////////////////////
// Constant Value Tests
// ///////////////////////////////////////////////

func TestConstantValues(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DataDirRel", DataDirRel, ".statuscord"},
		{"PIDFile", PIDFile, "daemon.pid"},
		{"ConfigFile", ConfigFile, "config.toml"},
		{"SettingsFile", SettingsFile, "settings.json"},
		{"LogFile", LogFile, "daemon.log"},
		{"AgentPIDFile", AgentPIDFile, "afkagent.pid"},
		{"AgentLogFile", AgentLogFile, "afkagent.log"},
		{"AgentConfigFile", AgentConfigFile, "afkagent.json"},
		{"CatalogCacheFile", CatalogCacheFile, "presets-cache.json"},
		{"BinaryName", BinaryName, "statuscord"},
		{"CatalogDataPath", CatalogDataPath, "data/presets.json"},
		{"ReleaseManifest", ReleaseManifest, ".release-manifest.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// DataDir Method Tests
// ///////////////////////////////////////////////

func TestDataDirMethods(t *testing.T) {
	root := filepath.Join("home", "user", ".statuscord")
	d := DataDir{Root: root}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"PID", d.PID(), filepath.Join(root, "daemon.pid")},
		{"Config", d.Config(), filepath.Join(root, "config.toml")},
		{"Settings", d.Settings(), filepath.Join(root, "settings.json")},
		{"Log", d.Log(), filepath.Join(root, "daemon.log")},
		{"AgentPID", d.AgentPID(), filepath.Join(root, "afkagent.pid")},
		{"AgentLog", d.AgentLog(), filepath.Join(root, "afkagent.log")},
		{"AgentConfig", d.AgentConfig(), filepath.Join(root, "afkagent.json")},
		{"CatalogCache", d.CatalogCache(), filepath.Join(root, "presets-cache.json")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestDataDirPathsAreUnderRoot(t *testing.T) {
	d := DataDir{Root: t.TempDir()}
	for _, p := range []string{d.PID(), d.Config(), d.Settings(), d.Log(), d.AgentPID(), d.AgentLog(), d.AgentConfig(), d.CatalogCache()} {
		if !strings.HasPrefix(p, d.Root) {
			t.Errorf("path %q is not under root %q", p, d.Root)
		}
	}
}
