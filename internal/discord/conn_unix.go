//go:build !windows

package discord

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// sandboxDirs are the per-user directories the Snap and Flatpak builds of
// each release channel place their socket in, relative to /run/user/<uid>.
var sandboxDirs = []string{
	"snap.discord",
	"snap.discord-canary",
	"snap.discord-ptb",
	"app/com.discordapp.Discord",
	"app/com.discordapp.DiscordCanary",
	"app/com.discordapp.DiscordPTB",
}

// socketDirs returns the directories that may hold the IPC socket, in dial
// order. macOS puts it under $TMPDIR, most Linux desktops under
// $XDG_RUNTIME_DIR.
func socketDirs(runtimeDir, tmpDir string, uid int) []string {
	var dirs []string
	for _, d := range []string{runtimeDir, tmpDir, "/tmp"} {
		if d != "" && !slices.Contains(dirs, filepath.Clean(d)) {
			dirs = append(dirs, filepath.Clean(d))
		}
	}
	user := filepath.Join("/run/user", strconv.Itoa(uid))
	for _, sb := range sandboxDirs {
		dirs = append(dirs, filepath.Join(user, sb))
	}
	return dirs
}

// socketPaths expands dirs into one path per channel and slot.
func socketPaths(dirs []string) []string {
	out := make([]string, 0, len(dirs)*len(ipcChannels)*maxIPCSlots)
	for _, dir := range dirs {
		for _, ch := range ipcChannels {
			for i := range maxIPCSlots {
				out = append(out, filepath.Join(dir, ch+"-"+strconv.Itoa(i)))
			}
		}
	}
	return out
}

// connectToDiscord returns the first IPC socket that accepts a connection.
func connectToDiscord() (net.Conn, error) {
	dirs := socketDirs(os.Getenv("XDG_RUNTIME_DIR"), os.Getenv("TMPDIR"), os.Getuid())
	for _, p := range socketPaths(dirs) {
		if conn, err := net.DialTimeout("unix", p, dialTimeout); err == nil {
			return conn, nil
		}
	}
	if isWSL() {
		return nil, fmt.Errorf("%w: under WSL Discord listens on the Windows side; relay //./pipe/discord-ipc-0 to /tmp/discord-ipc-0 with socat and npiperelay.exe", ErrIPCNotAvailable)
	}
	return nil, ErrIPCNotAvailable
}

// isWSL reports whether the process runs inside Windows Subsystem for Linux.
func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	return err == nil && strings.Contains(strings.ToLower(string(data)), "microsoft")
}
