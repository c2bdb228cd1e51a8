package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "publisher.debounce_ms")
// to their [FieldDoc] entries. Array-of-tables entries are keyed by the
// array path, e.g. "autodetect.rules.pattern".
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Discord ──────────────────────────────────────────────────
	"discord.app_id": {
		Comment: "Application ID for Discord Rich Presence.\nOverride with your own Discord app if you want custom images.",
	},

	// ── Control plane ────────────────────────────────────────────
	"control_plane": {
		Comment: "WebSocket listener that plugins connect to.",
	},
	"control_plane.addr": {
		Comment: "Listen address. Keep it on loopback.",
		Alternatives: []string{
			`addr = "127.0.0.1:6474"`,
		},
	},
	"control_plane.allowed_origins": {
		Comment: "Browser origins accepted in addition to loopback and requests without an Origin header.",
	},

	// ── AFK ──────────────────────────────────────────────────────
	"afk.system_idle_seconds": {
		Comment: "How often the daemon sends OS idle time to AFK plugins.\nWhile these updates flow, plugins stop sampling idle time themselves.\nSet to 0 to disable.",
	},

	// ── Publisher ────────────────────────────────────────────────
	"publisher": {
		Comment: "Timing for updates sent to Discord.",
	},
	"publisher.debounce_ms": {
		Comment: "Changes within this window are collapsed into one update.",
	},
	"publisher.short_delay_seconds": {
		Comment: "Reconnect delay used for the first short_attempts failures.",
	},
	"publisher.long_delay_seconds": {
		Comment: "Reconnect delay used after that.",
	},
	"publisher.short_attempts": {},
	"publisher.max_attempts": {
		Comment: "Consecutive failures before the publisher gives up until restart.",
	},

	// ── Priority ─────────────────────────────────────────────────
	"priority": {
		Comment: "Ranks of the competing presence sources. Lower wins; ranks must be unique.\nAFK and Spotify are overrides and are not ranked here.",
	},
	"priority.auto_detect":   {},
	"priority.manual_preset": {},
	"priority.default":       {},

	// ── Auto-detect ──────────────────────────────────────────────
	"autodetect.interval_seconds": {
		Comment: "How often the process list is scanned.",
	},
	"autodetect.rules": {
		Comment: "Process name globs mapped to preset names. First match wins.\nMatching ignores case and a trailing .exe.",
		Alternatives: []string{
			`[[autodetect.rules]]`,
			`pattern = "blender"`,
			`preset = "Modeling"`,
		},
	},
	"autodetect.rules.pattern": {},
	"autodetect.rules.preset":  {},

	// ── Catalog ──────────────────────────────────────────────────
	"catalog": {
		Comment: "Shared preset pack. Its presets are selectable by name when you have not defined one with the same name.",
	},
	"catalog.enabled": {},
	"catalog.url": {
		Comment: "Custom catalog endpoint (overrides the default).",
		Alternatives: []string{
			`# url = "https://example.com/presets.json"`,
		},
	},
	"catalog.file": {
		Comment: "Local file path. Takes precedence over url.",
		Alternatives: []string{
			`# file = "/path/to/presets.json"`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
