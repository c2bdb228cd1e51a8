// Package controlplane implements the local WebSocket channel between the
// daemon and its plugin clients.
//
// Every frame is a single JSON object with a "type" tag. [Decode] maps the tag
// to one concrete [Message] type in a single switch; tags it does not know
// decode to [Unknown] so newer plugins never break older daemons.
package controlplane

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// ErrMalformed is returned by [Decode] for frames that parse as JSON but miss
// a required field or carry an invalid value.
var ErrMalformed = errors.New("malformed message")

// Message type tags.
const (
	TypeHandshake             = "handshake"
	TypeSetLanguage           = "set_language"
	TypeShowToast             = "show_toast"
	TypeSystemIdleUpdate      = "system_idle_update"
	TypeAFKStatusChange       = "afk_status_change"
	TypeAFKTierChange         = "afk_tier_change"
	TypeAFKLogs               = "afk_logs"
	TypeSpotifyControl        = "spotify_control"
	TypeSpotifyControlClicked = "spotify_control_clicked"
	TypeSpotifyTrack          = "spotify_track"
	TypeSetPreset             = "set_preset"
	TypeSetPluginState        = "set_plugin_state"
	TypeSetPresenceEnabled    = "set_presence_enabled"
	TypeStatusRequest         = "status_request"
	TypeStatus                = "status"

	configSuffix   = "_config"
	updatePrefix   = "update_"
	settingsSuffix = "_settings"
)

// Well-known plugin sources announced in the handshake.
const (
	SourceAFK     = "SmartAFKDetector"
	SourceSpotify = "SpotifySync"
	SourceCLI     = "statusctl"
)

// ConfigType returns the "<domain>_config" tag.
func ConfigType(domain string) string { return domain + configSuffix }

// UpdateSettingsType returns the "update_<domain>_settings" tag.
func UpdateSettingsType(domain string) string { return updatePrefix + domain + settingsSuffix }

// SpotifyActions lists the accepted playback control actions.
var SpotifyActions = []string{"play", "pause", "playpause", "next", "previous"}

// Message is one decoded control-plane frame.
type Message interface {
	Type() string
}

// ///////////////////////////////////////////////
// Message Types
// ///////////////////////////////////////////////

// Handshake is the first frame a plugin sends after connecting.
type Handshake struct {
	Source string `json:"source"`
}

// Config carries a full domain config, "<domain>_config".
type Config struct {
	Domain string          `json:"-"`
	Config json.RawMessage `json:"config"`
}

// UpdateSettings carries a partial domain config to merge,
// "update_<domain>_settings".
type UpdateSettings struct {
	Domain   string          `json:"-"`
	Settings json.RawMessage `json:"settings"`
}

type SetLanguage struct {
	Language string `json:"language"`
}

type ShowToast struct {
	Message   string `json:"message"`
	ToastType string `json:"toastType,omitempty"`
}

// SystemIdleUpdate reports the system-wide idle time.
type SystemIdleUpdate struct {
	IdleMinutes float64 `json:"idleMinutes"`
}

type AFKStatusChange struct {
	IsAFK  bool   `json:"isAFK"`
	Tier   *int   `json:"tier,omitempty"`
	Status string `json:"status,omitempty"`
}

type AFKTierChange struct {
	Tier   int    `json:"tier"`
	Status string `json:"status"`
}

// LogLine is one entry of an [AFKLogs] frame.
type LogLine struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

type AFKLogs struct {
	Logs []LogLine `json:"logs"`
}

// SpotifyControl asks the Spotify plugin to perform a playback action.
type SpotifyControl struct {
	Action string `json:"action"`
}

// SpotifyControlClicked reports a playback button pressed in the widget.
type SpotifyControlClicked struct {
	Action string `json:"action"`
}

// SpotifyTrack reports the current track.
type SpotifyTrack struct {
	IsPlaying  bool   `json:"isPlaying"`
	Title      string `json:"title,omitempty"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	AlbumArt   string `json:"albumArt,omitempty"`
	URL        string `json:"url,omitempty"`
	StartedAt  int64  `json:"startedAt,omitempty"` // unix milliseconds
	DurationMs int64  `json:"durationMs,omitempty"`
}

// SetPreset selects a manual preset. An empty name clears the selection.
type SetPreset struct {
	Name string `json:"name"`
}

type SetPluginState struct {
	Name    string `json:"name"`
	Blocked bool   `json:"blocked"`
}

type SetPresenceEnabled struct {
	Enabled bool `json:"enabled"`
}

type StatusRequest struct{}

// PluginStatus is one plugin row of a [Status] reply.
type PluginStatus struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	// Config is the last config a connected session of the plugin sent.
	Config json.RawMessage `json:"config,omitempty"`
}

// Status is the daemon's reply to [StatusRequest].
type Status struct {
	Discord         string         `json:"discord"`
	PresenceEnabled bool           `json:"presenceEnabled"`
	Winner          string         `json:"winner"`
	ActivePreset    string         `json:"activePreset,omitempty"`
	Details         string         `json:"details,omitempty"`
	State           string         `json:"state,omitempty"`
	AFK             bool           `json:"afk"`
	AFKStatus       string         `json:"afkStatus,omitempty"`
	Playing         string         `json:"playing,omitempty"`
	Plugins         []PluginStatus `json:"plugins"`
	// AFKLog is the AFK detector's recent activity log.
	AFKLog []LogLine `json:"afkLog,omitempty"`
}

// Unknown is a frame with a type tag this build does not recognize.
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (Handshake) Type() string             { return TypeHandshake }
func (m Config) Type() string              { return ConfigType(m.Domain) }
func (m UpdateSettings) Type() string      { return UpdateSettingsType(m.Domain) }
func (SetLanguage) Type() string           { return TypeSetLanguage }
func (ShowToast) Type() string             { return TypeShowToast }
func (SystemIdleUpdate) Type() string      { return TypeSystemIdleUpdate }
func (AFKStatusChange) Type() string       { return TypeAFKStatusChange }
func (AFKTierChange) Type() string         { return TypeAFKTierChange }
func (AFKLogs) Type() string               { return TypeAFKLogs }
func (SpotifyControl) Type() string        { return TypeSpotifyControl }
func (SpotifyControlClicked) Type() string { return TypeSpotifyControlClicked }
func (SpotifyTrack) Type() string          { return TypeSpotifyTrack }
func (SetPreset) Type() string             { return TypeSetPreset }
func (SetPluginState) Type() string        { return TypeSetPluginState }
func (SetPresenceEnabled) Type() string    { return TypeSetPresenceEnabled }
func (StatusRequest) Type() string         { return TypeStatusRequest }
func (Status) Type() string                { return TypeStatus }
func (m Unknown) Type() string             { return m.Kind }

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

func (m Handshake) validate() error {
	if strings.TrimSpace(m.Source) == "" {
		return errors.New("source is required")
	}
	return nil
}

func (m SetLanguage) validate() error {
	if m.Language == "" {
		return errors.New("language is required")
	}
	return nil
}

func (m SystemIdleUpdate) validate() error {
	if math.IsNaN(m.IdleMinutes) || m.IdleMinutes < 0 {
		return fmt.Errorf("idleMinutes must be >= 0, got %v", m.IdleMinutes)
	}
	return nil
}

func (m AFKStatusChange) validate() error {
	if m.Tier != nil && *m.Tier < 0 {
		return fmt.Errorf("tier must be >= 0, got %d", *m.Tier)
	}
	if m.IsAFK && m.Tier == nil && strings.TrimSpace(m.Status) == "" {
		return errors.New("isAFK needs a tier or a status")
	}
	return nil
}

func (m AFKTierChange) validate() error {
	if m.Tier < 0 {
		return fmt.Errorf("tier must be >= 0, got %d", m.Tier)
	}
	return nil
}

func (m SpotifyControl) validate() error        { return validAction(m.Action) }
func (m SpotifyControlClicked) validate() error { return validAction(m.Action) }

func (m SetPluginState) validate() error {
	if m.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func validAction(a string) error {
	if !slices.Contains(SpotifyActions, a) {
		return fmt.Errorf("unknown spotify action %q", a)
	}
	return nil
}

// ///////////////////////////////////////////////
// Decode / Encode
// ///////////////////////////////////////////////

// Decode parses one frame. Invalid JSON and frames failing validation return
// an error; unrecognized tags return [Unknown].
func Decode(data []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	case TypeHandshake:
		return decodeAs[Handshake](data)
	case TypeSetLanguage:
		return decodeAs[SetLanguage](data)
	case TypeShowToast:
		return decodeAs[ShowToast](data)
	case TypeSystemIdleUpdate:
		return decodeAs[SystemIdleUpdate](data)
	case TypeAFKStatusChange:
		return decodeAs[AFKStatusChange](data)
	case TypeAFKTierChange:
		return decodeAs[AFKTierChange](data)
	case TypeAFKLogs:
		return decodeAs[AFKLogs](data)
	case TypeSpotifyControl:
		return decodeAs[SpotifyControl](data)
	case TypeSpotifyControlClicked:
		return decodeAs[SpotifyControlClicked](data)
	case TypeSpotifyTrack:
		return decodeAs[SpotifyTrack](data)
	case TypeSetPreset:
		return decodeAs[SetPreset](data)
	case TypeSetPluginState:
		return decodeAs[SetPluginState](data)
	case TypeSetPresenceEnabled:
		return decodeAs[SetPresenceEnabled](data)
	case TypeStatusRequest:
		return StatusRequest{}, nil
	case TypeStatus:
		return decodeAs[Status](data)
	}

	if domain, ok := strings.CutSuffix(env.Type, configSuffix); ok && domain != "" {
		m, err := decodeAs[Config](data)
		if err != nil {
			return nil, err
		}
		c := m.(Config)
		c.Domain = domain
		return c, nil
	}
	if rest, ok := strings.CutPrefix(env.Type, updatePrefix); ok {
		if domain, ok := strings.CutSuffix(rest, settingsSuffix); ok && domain != "" {
			patch, err := settingsPatch(data)
			if err != nil {
				return nil, err
			}
			return UpdateSettings{Domain: domain, Settings: patch}, nil
		}
	}
	return Unknown{Kind: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
}

// settingsPatch returns the fields an update frame carries. Plugins send
// them either nested under "settings" or flat beside the type tag. A frame
// with neither yields nil.
func settingsPatch(data []byte) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: UpdateSettings: %v", ErrMalformed, err)
	}
	if nested, ok := fields["settings"]; ok {
		if t := strings.TrimSpace(string(nested)); t == "null" {
			return nil, nil
		} else if !strings.HasPrefix(t, "{") {
			return nil, fmt.Errorf("%w: UpdateSettings: settings must be an object", ErrMalformed)
		}
		return nested, nil
	}
	delete(fields, "type")
	if len(fields) == 0 {
		return nil, nil
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: UpdateSettings: %v", ErrMalformed, err)
	}
	return patch, nil
}

func decodeAs[T Message](data []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrMalformed, v, err)
	}
	if val, ok := any(v).(interface{ validate() error }); ok {
		if err := val.validate(); err != nil {
			return nil, fmt.Errorf("%w: %T: %v", ErrMalformed, v, err)
		}
	}
	return v, nil
}

// Encode serializes m with its type tag first.
func Encode(m Message) ([]byte, error) {
	if u, ok := m.(Unknown); ok {
		return u.Raw, nil
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	tag, _ := json.Marshal(m.Type())

	out := make([]byte, 0, len(body)+len(tag)+10)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
