// Package settings is the persisted key-value store shared by the daemon and
// its plugins.
//
// The store is a JSON document (settings.json) with one section per logical
// domain. Schema evolution follows four rules:
//   - fields are only ever added
//   - unknown fields are ignored
//   - missing fields take their defaults
//   - "$version" records the layout; older files are upgraded by the
//     [migrate.Settings] registry before decoding
package settings

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strings"

	"tools.zach/dev/statuscord/internal/migrate"
	"tools.zach/dev/statuscord/internal/plugins"
	"tools.zach/dev/statuscord/internal/priority"
	"tools.zach/dev/statuscord/internal/tiers"
)

// DefaultServerURL is the control-plane address plugins dial by default.
const DefaultServerURL = "ws://127.0.0.1:6473"

// Languages lists the recognized UI languages.
var Languages = []string{"en", "de", "fr", "es"}

// ValidLanguage reports whether lang is recognized.
func ValidLanguage(lang string) bool {
	return slices.Contains(Languages, lang)
}

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Data is the whole settings document.
type Data struct {
	Version  int                      `json:"$version"`
	AFK      AFK                      `json:"afk"`
	Spotify  Spotify                  `json:"spotify"`
	Presence Presence                 `json:"presence"`
	Plugins  map[string]plugins.Entry `json:"plugins"`
	// Soundboard and FormState are owned by surfaces outside the daemon and
	// are carried through untouched.
	Soundboard json.RawMessage `json:"soundboard,omitempty"`
	FormState  json.RawMessage `json:"formState,omitempty"`
}

// AFK is the AFK detector's section.
type AFK struct {
	Enabled            bool         `json:"enabled"`
	Language           string       `json:"language"`
	AFKTiers           []tiers.Tier `json:"afkTiers"`
	AFKDisabledPresets []string     `json:"afkDisabledPresets"`
	ServerURL          string       `json:"serverUrl"`
}

// Spotify is the Spotify sync plugin's section.
type Spotify struct {
	Enabled    bool   `json:"enabled"`
	Language   string `json:"language"`
	ServerURL  string `json:"serverUrl"`
	ShowWidget bool   `json:"showWidget"`
}

// Presence holds the Rich Presence presets.
type Presence struct {
	Enabled       bool     `json:"enabled"`
	Language      string   `json:"language"`
	ActivePreset  string   `json:"activePreset"`
	DefaultPreset string   `json:"defaultPreset"`
	Presets       []Preset `json:"presets"`
}

// Preset is a named activity payload the user can select.
type Preset struct {
	Name string `json:"name"`
	priority.Payload
	// UseTimestamp shows elapsed time since the preset was selected.
	UseTimestamp bool `json:"useTimestamp,omitempty"`
	// UseSpotify renders the current track while one is playing.
	UseSpotify bool `json:"useSpotify,omitempty"`
}

// Preset returns the preset called name.
func (p Presence) Preset(name string) (Preset, bool) {
	i := slices.IndexFunc(p.Presets, func(x Preset) bool { return x.Name == name })
	if i < 0 {
		return Preset{}, false
	}
	return p.Presets[i], true
}

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

// Defaults returns the document used when no file exists.
func Defaults() Data {
	return Data{
		Version: migrate.Settings.CurrentVersion,
		AFK: AFK{
			Enabled:            true,
			Language:           "en",
			AFKTiers:           tiers.Defaults(),
			AFKDisabledPresets: []string{},
			ServerURL:          DefaultServerURL,
		},
		Spotify: Spotify{
			Enabled:    true,
			Language:   "en",
			ServerURL:  DefaultServerURL,
			ShowWidget: true,
		},
		Presence: Presence{
			Enabled:       true,
			Language:      "en",
			DefaultPreset: "Idle",
			Presets: []Preset{
				{Name: "Idle", Payload: priority.Payload{Details: "Idle", LargeImage: "app_icon", LargeText: "statuscord"}},
			},
		},
		Plugins: map[string]plugins.Entry{},
	}
}

// Normalize fixes up values a hand edit or a plugin may have broken: tiers
// are validated and re-sorted, preset vetoes deduplicated, empty languages
// and URLs defaulted. Problems are logged, never fatal.
func Normalize(d *Data) {
	def := Defaults()
	d.Version = migrate.Settings.CurrentVersion

	d.AFK.AFKTiers = tiers.Normalize(d.AFK.AFKTiers)
	if dups := tiers.Duplicates(d.AFK.AFKTiers); len(dups) > 0 {
		slog.Warn("afk tiers share thresholds; the later entry wins", "minutes", dups)
	}
	d.AFK.AFKDisabledPresets = dedupe(d.AFK.AFKDisabledPresets)

	for _, lang := range []*string{&d.AFK.Language, &d.Spotify.Language, &d.Presence.Language} {
		if !ValidLanguage(*lang) {
			if *lang != "" {
				slog.Warn("unrecognized language, using en", "language", *lang)
			}
			*lang = "en"
		}
	}
	if strings.TrimSpace(d.AFK.ServerURL) == "" {
		d.AFK.ServerURL = def.AFK.ServerURL
	}
	if strings.TrimSpace(d.Spotify.ServerURL) == "" {
		d.Spotify.ServerURL = def.Spotify.ServerURL
	}
	if d.Presence.Presets == nil {
		d.Presence.Presets = []Preset{}
	}
	if d.Plugins == nil {
		d.Plugins = map[string]plugins.Entry{}
	}
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
