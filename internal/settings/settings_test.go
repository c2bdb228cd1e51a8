package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tools.zach/dev/statuscord/internal/plugins"
	"tools.zach/dev/statuscord/internal/tiers"
)

func tempStore(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// ///////////////////////////////////////////////
// Open Tests
// ///////////////////////////////////////////////

func TestOpenMissingUsesDefaults(t *testing.T) {
	s := tempStore(t, "")
	d := s.Snapshot()
	if d.Version != 2 {
		t.Errorf("Version = %d, want 2", d.Version)
	}
	if !tiers.Equal(d.AFK.AFKTiers, tiers.Defaults()) {
		t.Errorf("AFKTiers = %v, want defaults", d.AFK.AFKTiers)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("opening a missing file must not create it")
	}
}

func TestOpenMissingFieldsDefaultUnknownIgnored(t *testing.T) {
	s := tempStore(t, `{"$version":2,"afk":{"language":"de","futureField":1},"somethingNew":true}`)
	d := s.Snapshot()
	if d.AFK.Language != "de" {
		t.Errorf("Language = %q, want de", d.AFK.Language)
	}
	if !d.AFK.Enabled || d.AFK.ServerURL != DefaultServerURL {
		t.Errorf("missing fields not defaulted: %+v", d.AFK)
	}
	if !d.Presence.Enabled || d.Presence.DefaultPreset != "Idle" {
		t.Errorf("missing section not defaulted: %+v", d.Presence)
	}
}

func TestOpenCorruptBacksUp(t *testing.T) {
	s := tempStore(t, `{"afk": {`)
	if _, err := os.Stat(s.Path() + CorruptSuffix); err != nil {
		t.Fatalf("corrupt backup missing: %v", err)
	}
	raw, _ := os.ReadFile(s.Path())
	if !strings.Contains(string(raw), `"$version": 2`) {
		t.Errorf("defaults not written over corrupt file: %s", raw)
	}
}

func TestOpenNormalizesTiers(t *testing.T) {
	s := tempStore(t, `{"$version":2,"afk":{"afkTiers":[{"minutes":10,"status":"x"},{"minutes":0,"status":"bad"},{"minutes":2,"status":"y"}]}}`)
	got := s.Snapshot().AFK.AFKTiers
	want := []tiers.Tier{{Minutes: 2, Status: "y"}, {Minutes: 10, Status: "x"}}
	if !tiers.Equal(got, want) {
		t.Errorf("AFKTiers = %v, want %v", got, want)
	}
}

func TestOpenPreservesOpaqueSections(t *testing.T) {
	s := tempStore(t, `{"$version":2,"soundboard":{"volume":0.5,"sounds":["a.mp3"]},"formState":{"draft":"x"}}`)
	if err := s.Update(func(d *Data) { d.AFK.Enabled = false }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	raw, _ := os.ReadFile(s.Path())
	if !strings.Contains(string(raw), `"a.mp3"`) || !strings.Contains(string(raw), `"draft"`) {
		t.Errorf("opaque sections lost: %s", raw)
	}
}

// ///////////////////////////////////////////////
// Migration Tests
// ///////////////////////////////////////////////

func TestMigrateV1FoldsBlockedPlugins(t *testing.T) {
	v1 := `{
		"afk": {"enabled": true},
		"plugins": {"SmartAFKDetector": {"id": "a"}, "SpotifySync": {"id": "b"}},
		"blockedPlugins": ["SpotifySync", "OldThing"]
	}`
	s := tempStore(t, v1)
	d := s.Snapshot()

	want := map[string]plugins.State{
		"SmartAFKDetector": plugins.Active,
		"SpotifySync":      plugins.Blocked,
		"OldThing":         plugins.Blocked,
	}
	for name, st := range want {
		if d.Plugins[name].State != st {
			t.Errorf("plugin %s state = %q, want %q", name, d.Plugins[name].State, st)
		}
	}
	if d.Plugins["SpotifySync"].ID != "b" {
		t.Errorf("SpotifySync id = %q, want b", d.Plugins["SpotifySync"].ID)
	}

	raw, _ := os.ReadFile(s.Path())
	if strings.Contains(string(raw), "blockedPlugins") {
		t.Error("migrated file still contains blockedPlugins")
	}
	if _, err := os.Stat(s.Path() + ".bak"); err != nil {
		t.Errorf("pre-migration backup missing: %v", err)
	}
}

func TestFoldBlockedPluginsNoPlugins(t *testing.T) {
	out, err := foldBlockedPlugins([]byte(`{"afk":{}}`))
	if err != nil {
		t.Fatalf("foldBlockedPlugins: %v", err)
	}
	var doc map[string]json.RawMessage
	json.Unmarshal(out, &doc)
	if string(doc["$version"]) != "2" || string(doc["plugins"]) != "{}" {
		t.Errorf("unexpected output: %s", out)
	}
}

// ///////////////////////////////////////////////
// Merge Tests
// ///////////////////////////////////////////////

func TestMergeAFKTiersResorted(t *testing.T) {
	s := tempStore(t, "")
	fresh, err := s.Merge(DomainAFK, json.RawMessage(`{"afkTiers":[{"minutes":10,"status":"x"},{"minutes":2,"status":"y"}]}`))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	want := []tiers.Tier{{Minutes: 2, Status: "y"}, {Minutes: 10, Status: "x"}}
	if got := s.Snapshot().AFK.AFKTiers; !tiers.Equal(got, want) {
		t.Errorf("persisted tiers = %v, want %v", got, want)
	}

	var sec AFK
	if err := json.Unmarshal(fresh, &sec); err != nil {
		t.Fatalf("decoding fresh section: %v", err)
	}
	if !tiers.Equal(sec.AFKTiers, want) {
		t.Errorf("reply tiers = %v, want %v", sec.AFKTiers, want)
	}
	if !sec.Enabled {
		t.Error("fields absent from the patch must keep their values")
	}

	reopened, err := Open(s.Path())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Snapshot().AFK.AFKTiers; !tiers.Equal(got, want) {
		t.Errorf("reopened tiers = %v, want %v", got, want)
	}
}

func TestMergeDoesNotAliasSnapshot(t *testing.T) {
	s := tempStore(t, "")
	before := s.Snapshot()
	if _, err := s.Merge(DomainAFK, json.RawMessage(`{"afkTiers":[{"minutes":1,"status":"q"}]}`)); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !tiers.Equal(before.AFK.AFKTiers, tiers.Defaults()) {
		t.Errorf("earlier snapshot mutated: %v", before.AFK.AFKTiers)
	}
}

func TestMergeErrors(t *testing.T) {
	s := tempStore(t, "")
	if _, err := s.Merge("soundboard", json.RawMessage(`{}`)); !errors.Is(err, ErrUnknownDomain) {
		t.Errorf("Merge(unknown) = %v, want ErrUnknownDomain", err)
	}
	if _, err := s.Merge(DomainAFK, json.RawMessage(`{"afkTiers":"nope"}`)); err == nil {
		t.Error("expected error for mistyped patch")
	}
	if got := s.Snapshot().AFK.AFKTiers; !tiers.Equal(got, tiers.Defaults()) {
		t.Errorf("failed merge changed data: %v", got)
	}
}

func TestMergeEmptyPatchReturnsSection(t *testing.T) {
	s := tempStore(t, "")
	got, err := s.Merge(DomainSpotify, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !strings.Contains(string(got), `"showWidget":true`) {
		t.Errorf("Merge(nil) = %s", got)
	}
}

// ///////////////////////////////////////////////
// Reload Tests
// ///////////////////////////////////////////////

func TestReloadDetectsExternalEdit(t *testing.T) {
	s := tempStore(t, "")
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	changed, err := s.Reload()
	if err != nil || changed {
		t.Fatalf("Reload after own write = %v, %v; want false, nil", changed, err)
	}

	if err := os.WriteFile(s.Path(), []byte(`{"$version":2,"afk":{"language":"fr"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	changed, err = s.Reload()
	if err != nil || !changed {
		t.Fatalf("Reload after edit = %v, %v; want true, nil", changed, err)
	}
	if s.Snapshot().AFK.Language != "fr" {
		t.Error("reload did not apply edit")
	}
}

func TestReloadBadFileKeepsData(t *testing.T) {
	s := tempStore(t, `{"$version":2,"afk":{"language":"es"}}`)
	os.WriteFile(s.Path(), []byte(`{not json`), 0o600)
	if _, err := s.Reload(); err == nil {
		t.Fatal("expected error for bad file")
	}
	if s.Snapshot().AFK.Language != "es" {
		t.Error("bad reload replaced data")
	}
}

// ///////////////////////////////////////////////
// Normalize Tests
// ///////////////////////////////////////////////

func TestNormalize(t *testing.T) {
	d := Data{
		AFK: AFK{
			Language:           "klingon",
			AFKDisabledPresets: []string{"Coding", " Coding ", "", "Gaming"},
		},
	}
	Normalize(&d)

	if d.AFK.Language != "en" || d.Spotify.Language != "en" {
		t.Errorf("languages not defaulted: %q %q", d.AFK.Language, d.Spotify.Language)
	}
	if strings.Join(d.AFK.AFKDisabledPresets, ",") != "Coding,Gaming" {
		t.Errorf("AFKDisabledPresets = %v", d.AFK.AFKDisabledPresets)
	}
	if d.AFK.ServerURL != DefaultServerURL || d.Plugins == nil || d.Presence.Presets == nil {
		t.Errorf("defaults not filled: %+v", d)
	}
}

func TestPresenceLookup(t *testing.T) {
	p := Defaults().Presence
	if _, ok := p.Preset("Idle"); !ok {
		t.Error("default preset missing")
	}
	if _, ok := p.Preset("nope"); ok {
		t.Error("unexpected preset")
	}
}
