//go:build !windows

package discord

import (
	"net"
	"path/filepath"
	"slices"
	"testing"
)

func TestSocketDirs(t *testing.T) {
	tests := []struct {
		name       string
		runtimeDir string
		tmpDir     string
		wantFirst  []string
	}{
		{"linux desktop", "/run/user/1000", "", []string{"/run/user/1000", "/tmp"}},
		{"macos", "", "/var/folders/xy/T/", []string{"/var/folders/xy/T", "/tmp"}},
		{"tmpdir is /tmp", "", "/tmp/", []string{"/tmp"}},
		{"nothing set", "", "", []string{"/tmp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dirs := socketDirs(tt.runtimeDir, tt.tmpDir, 1000)
			if len(dirs) != len(tt.wantFirst)+len(sandboxDirs) {
				t.Fatalf("socketDirs = %v", dirs)
			}
			if got := dirs[:len(tt.wantFirst)]; !slices.Equal(got, tt.wantFirst) {
				t.Errorf("leading dirs = %v, want %v", got, tt.wantFirst)
			}
			if !slices.Contains(dirs, "/run/user/1000/snap.discord") {
				t.Errorf("snap dir missing from %v", dirs)
			}
		})
	}
}

func TestSocketPaths(t *testing.T) {
	paths := socketPaths([]string{"/a", "/b"})
	if len(paths) != 2*len(ipcChannels)*maxIPCSlots {
		t.Fatalf("got %d paths", len(paths))
	}
	if paths[0] != filepath.Join("/a", "discord-ipc-0") {
		t.Errorf("first path = %q", paths[0])
	}
	for _, want := range []string{"/a/discordcanary-ipc-3", "/b/discordptb-ipc-9"} {
		if !slices.Contains(paths, want) {
			t.Errorf("missing %q", want)
		}
	}
}

// The dial order must find a live socket in the runtime dir.
func TestSocketPathsDialable(t *testing.T) {
	dir := t.TempDir()
	ln, err := net.Listen("unix", filepath.Join(dir, "discord-ipc-2"))
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	defer ln.Close()

	for _, p := range socketPaths(socketDirs(dir, "", 0)) {
		if conn, err := net.DialTimeout("unix", p, dialTimeout); err == nil {
			conn.Close()
			if p != filepath.Join(dir, "discord-ipc-2") {
				t.Errorf("connected to %q", p)
			}
			return
		}
	}
	t.Error("no candidate reached the listener")
}
