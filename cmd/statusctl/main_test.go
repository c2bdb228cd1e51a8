package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"tools.zach/dev/statuscord/internal/controlplane"
)

// ///////////////////////////////////////////////
// parseCommand Tests
// ///////////////////////////////////////////////

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want controlplane.Message
	}{
		{"status", []string{"status"}, controlplane.StatusRequest{}},
		{"preset", []string{"preset", "Coding"}, controlplane.SetPreset{Name: "Coding"}},
		{"preset with spaces", []string{"preset", "Deep", "Work"}, controlplane.SetPreset{Name: "Deep Work"}},
		{"clear", []string{"clear"}, controlplane.SetPreset{}},
		{"block", []string{"block", "Spotify"}, controlplane.SetPluginState{Name: "Spotify", Blocked: true}},
		{"unblock", []string{"unblock", "Spotify"}, controlplane.SetPluginState{Name: "Spotify"}},
		{"spotify", []string{"spotify", "next"}, controlplane.SpotifyControl{Action: "next"}},
		{"presence on", []string{"presence", "on"}, controlplane.SetPresenceEnabled{Enabled: true}},
		{"presence off", []string{"presence", "off"}, controlplane.SetPresenceEnabled{}},
		{"language", []string{"language", "de"}, controlplane.SetLanguage{Language: "de"}},
		{"toast", []string{"toast", "back", "soon"}, controlplane.ShowToast{Message: "back soon", ToastType: "info"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.args)
			if err != nil {
				t.Fatalf("parseCommand(%q) error: %v", tt.args, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseCommand(%q) = %#v, want %#v", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"empty", nil},
		{"unknown", []string{"reboot"}},
		{"preset without name", []string{"preset"}},
		{"block without name", []string{"block", "  "}},
		{"bad spotify action", []string{"spotify", "rewind"}},
		{"bad presence", []string{"presence", "maybe"}},
		{"language without code", []string{"language"}},
		{"empty toast", []string{"toast"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseCommand(tt.args); !errors.Is(err, ErrUsage) {
				t.Errorf("parseCommand(%q) error = %v, want ErrUsage", tt.args, err)
			}
		})
	}
}

// ///////////////////////////////////////////////
// printStatus Tests
// ///////////////////////////////////////////////

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, controlplane.Status{
		Discord:         "connected",
		PresenceEnabled: true,
		Winner:          "manual_preset",
		ActivePreset:    "Coding",
		Details:         "In the zone",
		Plugins: []controlplane.PluginStatus{
			{Name: "SmartAFKDetector", State: "active", Connected: true},
		},
		AFKLog: []controlplane.LogLine{{Time: time.Now(), Message: "went idle"}},
	})
	out := buf.String()
	for _, want := range []string{"discord:", "connected", "preset:", "Coding", "PLUGIN", "SmartAFKDetector", "went idle"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "afk:") {
		t.Errorf("afk row printed while not AFK:\n%s", out)
	}
}

// ///////////////////////////////////////////////
// send Tests
// ///////////////////////////////////////////////

// stubDaemon answers the way the engine does: unknown presets get an error
// toast, status requests get a status reply.
type stubDaemon struct {
	presets map[string]bool
}

func (stubDaemon) OnConnect(*controlplane.Session)    {}
func (stubDaemon) OnDisconnect(*controlplane.Session) {}

func (d stubDaemon) OnMessage(s *controlplane.Session, m controlplane.Message) {
	switch m := m.(type) {
	case controlplane.SetPreset:
		if !d.presets[m.Name] {
			s.Send(controlplane.ShowToast{Message: "unknown preset " + m.Name, ToastType: "error"})
		}
	case controlplane.StatusRequest:
		s.Send(controlplane.Status{Discord: "connected", Winner: "default"})
	}
}

func startStub(t *testing.T) string {
	t.Helper()
	srv := controlplane.NewServer(stubDaemon{presets: map[string]bool{"Coding": true}}, controlplane.ServerOptions{})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestSendReportsSuccess(t *testing.T) {
	url := startStub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	st, err := send(ctx, url, controlplane.SetPreset{Name: "Coding"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if st.Discord != "connected" {
		t.Errorf("status = %+v", st)
	}
}

func TestSendReportsErrorToast(t *testing.T) {
	url := startStub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := send(ctx, url, controlplane.SetPreset{Name: "Nope"})
	if err == nil || !strings.Contains(err.Error(), "unknown preset Nope") {
		t.Errorf("send error = %v, want unknown preset", err)
	}
}

func TestSendNoDaemon(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := send(ctx, "ws://127.0.0.1:1", controlplane.StatusRequest{}); err == nil {
		t.Error("expected dial error")
	}
}
