package controlplane

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// ///////////////////////////////////////////////
// Decode Tests
// ///////////////////////////////////////////////

func TestDecodeKnownKinds(t *testing.T) {
	tests := []struct {
		frame string
		check func(t *testing.T, m Message)
	}{
		{`{"type":"handshake","source":"SmartAFKDetector"}`, func(t *testing.T, m Message) {
			if m.(Handshake).Source != "SmartAFKDetector" {
				t.Errorf("source = %q", m.(Handshake).Source)
			}
		}},
		{`{"type":"afk_config","config":{"enabled":true}}`, func(t *testing.T, m Message) {
			c := m.(Config)
			if c.Domain != "afk" || string(c.Config) != `{"enabled":true}` {
				t.Errorf("config = %+v", c)
			}
		}},
		{`{"type":"update_afk_settings","settings":{"afkTiers":[]}}`, func(t *testing.T, m Message) {
			u := m.(UpdateSettings)
			if u.Domain != "afk" || !strings.Contains(string(u.Settings), "afkTiers") {
				t.Errorf("update = %+v", u)
			}
		}},
		{`{"type":"update_afk_settings","afkTiers":[{"minutes":10,"status":"x"}],"enabled":false}`, func(t *testing.T, m Message) {
			u := m.(UpdateSettings)
			var patch map[string]json.RawMessage
			if err := json.Unmarshal(u.Settings, &patch); err != nil {
				t.Fatalf("flat patch: %v", err)
			}
			if _, ok := patch["type"]; ok {
				t.Error("type tag leaked into the patch")
			}
			if _, ok := patch["afkTiers"]; !ok || string(patch["enabled"]) != "false" {
				t.Errorf("flat patch = %s", u.Settings)
			}
		}},
		{`{"type":"update_spotify_settings"}`, func(t *testing.T, m Message) {
			if u := m.(UpdateSettings); u.Domain != "spotify" || u.Settings != nil {
				t.Errorf("empty update = %+v", u)
			}
		}},
		{`{"type":"afk_status_change","isAFK":true,"tier":0}`, func(t *testing.T, m Message) {
			if s := m.(AFKStatusChange); s.Tier == nil || *s.Tier != 0 || s.Status != "" {
				t.Errorf("status change = %+v", s)
			}
		}},
		{`{"type":"system_idle_update","idleMinutes":5.5}`, func(t *testing.T, m Message) {
			if m.(SystemIdleUpdate).IdleMinutes != 5.5 {
				t.Errorf("idle = %v", m)
			}
		}},
		{`{"type":"afk_status_change","isAFK":true,"tier":1,"status":"Deep Away"}`, func(t *testing.T, m Message) {
			s := m.(AFKStatusChange)
			if !s.IsAFK || s.Tier == nil || *s.Tier != 1 || s.Status != "Deep Away" {
				t.Errorf("status change = %+v", s)
			}
		}},
		{`{"type":"afk_status_change","isAFK":false}`, func(t *testing.T, m Message) {
			if s := m.(AFKStatusChange); s.IsAFK || s.Tier != nil {
				t.Errorf("status change = %+v", s)
			}
		}},
		{`{"type":"afk_logs","logs":[{"time":"2026-01-02T03:04:05Z","message":"entered afk"}]}`, func(t *testing.T, m Message) {
			if l := m.(AFKLogs); len(l.Logs) != 1 || l.Logs[0].Message != "entered afk" {
				t.Errorf("logs = %+v", l)
			}
		}},
		{`{"type":"spotify_control","action":"next"}`, func(t *testing.T, m Message) {
			if m.(SpotifyControl).Action != "next" {
				t.Errorf("action = %+v", m)
			}
		}},
		{`{"type":"set_preset","name":""}`, func(t *testing.T, m Message) {
			if m.(SetPreset).Name != "" {
				t.Errorf("preset = %+v", m)
			}
		}},
		{`{"type":"status_request"}`, func(t *testing.T, m Message) {
			if _, ok := m.(StatusRequest); !ok {
				t.Errorf("got %T", m)
			}
		}},
	}
	for _, tt := range tests {
		m, err := Decode([]byte(tt.frame))
		if err != nil {
			t.Errorf("Decode(%s): %v", tt.frame, err)
			continue
		}
		tt.check(t, m)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	frame := `{"type":"soundboard_play","id":3}`
	m, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	u, ok := m.(Unknown)
	if !ok {
		t.Fatalf("got %T, want Unknown", m)
	}
	if u.Type() != "soundboard_play" || string(u.Raw) != frame {
		t.Errorf("unknown = %+v", u)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		malformed bool
	}{
		{"bad json", `{"type":`, false},
		{"not an object", `[1,2]`, false},
		{"missing type", `{"source":"x"}`, true},
		{"handshake without source", `{"type":"handshake"}`, true},
		{"bad spotify action", `{"type":"spotify_control","action":"rewind"}`, true},
		{"negative idle", `{"type":"system_idle_update","idleMinutes":-1}`, true},
		{"wrong field type", `{"type":"afk_tier_change","tier":"two","status":"x"}`, true},
		{"plugin state without name", `{"type":"set_plugin_state","blocked":true}`, true},
		{"afk without tier or status", `{"type":"afk_status_change","isAFK":true}`, true},
		{"negative afk tier", `{"type":"afk_status_change","isAFK":true,"tier":-1}`, true},
		{"settings not an object", `{"type":"update_afk_settings","settings":[1]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrMalformed); got != tt.malformed {
				t.Errorf("errors.Is(ErrMalformed) = %v, want %v (%v)", got, tt.malformed, err)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Encode Tests
// ///////////////////////////////////////////////

func TestEncodeTagsType(t *testing.T) {
	data, err := Encode(AFKTierChange{Tier: 1, Status: "Deep Away"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != `{"type":"afk_tier_change","tier":1,"status":"Deep Away"}` {
		t.Errorf("Encode = %s", data)
	}
	if strings.Contains(string(data), "\n") {
		t.Error("frames must be newline-free")
	}
}

func TestEncodeEmptyBody(t *testing.T) {
	data, err := Encode(StatusRequest{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != `{"type":"status_request"}` {
		t.Errorf("Encode = %s", data)
	}
}

func TestEncodeDomainTypes(t *testing.T) {
	data, _ := Encode(Config{Domain: "spotify", Config: json.RawMessage(`{"enabled":false}`)})
	if string(data) != `{"type":"spotify_config","config":{"enabled":false}}` {
		t.Errorf("Encode(Config) = %s", data)
	}

	m, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c := m.(Config); c.Domain != "spotify" {
		t.Errorf("Domain = %q", c.Domain)
	}
}

func TestEncodeUnknownPassesThrough(t *testing.T) {
	raw := json.RawMessage(`{"type":"x","a":1}`)
	data, _ := Encode(Unknown{Kind: "x", Raw: raw})
	if string(data) != string(raw) {
		t.Errorf("Encode(Unknown) = %s", data)
	}
}
