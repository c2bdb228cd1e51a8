package settings

import (
	"encoding/json"
	"fmt"
	"slices"

	"tools.zach/dev/statuscord/internal/migrate"
)

func init() {
	migrate.Settings.Register(migrate.Migration{
		Version:     2,
		Description: "fold blockedPlugins into per-plugin state",
		Upgrade:     foldBlockedPlugins,
	})
}

// foldBlockedPlugins converts the v1 layout, where blocked plugins were kept
// in a top-level "blockedPlugins" name list beside "plugins": {name: {id}},
// into a single "plugins": {name: {id, state}} map.
func foldBlockedPlugins(data []byte) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode v1 settings: %w", err)
	}

	var blocked []string
	if raw, ok := doc["blockedPlugins"]; ok {
		if err := json.Unmarshal(raw, &blocked); err != nil {
			return nil, fmt.Errorf("decode blockedPlugins: %w", err)
		}
	}

	entries := map[string]map[string]any{}
	if raw, ok := doc["plugins"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decode plugins: %w", err)
		}
	}
	for name, e := range entries {
		if e == nil {
			e = map[string]any{}
			entries[name] = e
		}
		e["state"] = "active"
		if slices.Contains(blocked, name) {
			e["state"] = "blocked"
		}
	}
	for _, name := range blocked {
		if _, ok := entries[name]; !ok {
			entries[name] = map[string]any{"state": "blocked"}
		}
	}

	pluginsRaw, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	doc["plugins"] = pluginsRaw
	delete(doc, "blockedPlugins")
	doc["$version"] = json.RawMessage("2")
	return json.Marshal(doc)
}
