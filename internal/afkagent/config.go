package afkagent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"tools.zach/dev/statuscord/internal/atomicfile"
	"tools.zach/dev/statuscord/internal/settings"
)

// Config is the agent's own copy of the afk settings section.
type Config = settings.AFK

// DefaultConfig returns the afk section defaults.
func DefaultConfig() Config {
	return settings.Defaults().AFK
}

// LoadConfig reads the agent config at path. A missing file yields the
// defaults; a file that fails to parse is backed up and replaced by them.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("read afk config: %w", err)
	}
	cfg, err := MergeConfig(DefaultConfig(), raw)
	if err != nil {
		slog.Warn("afk config is corrupt, using defaults", "path", path, "error", err)
		if err := atomicfile.Backup(path, settings.CorruptSuffix); err != nil {
			return Config{}, err
		}
		cfg = DefaultConfig()
		if err := SaveConfig(path, cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// SaveConfig writes cfg to path atomically.
func SaveConfig(path string, cfg Config) error {
	if err := atomicfile.WriteJSON(path, cfg, 0o644); err != nil {
		return fmt.Errorf("save afk config: %w", err)
	}
	return nil
}

// MergeConfig decodes patch onto a copy of cur and normalizes the result the
// same way the daemon does: tiers validated and re-sorted, vetoes deduplicated,
// language and server URL defaulted.
func MergeConfig(cur Config, patch json.RawMessage) (Config, error) {
	next := cur
	next.AFKTiers = slices.Clone(cur.AFKTiers)
	next.AFKDisabledPresets = slices.Clone(cur.AFKDisabledPresets)
	if len(patch) > 0 {
		if err := json.Unmarshal(patch, &next); err != nil {
			return cur, fmt.Errorf("decode afk config: %w", err)
		}
	}
	d := settings.Defaults()
	d.AFK = next
	settings.Normalize(&d)
	return d.AFK, nil
}
