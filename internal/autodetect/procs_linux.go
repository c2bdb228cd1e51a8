//go:build linux

package autodetect

import (
	"os"
	"path/filepath"
	"strings"
)

// procRoot is the procfs mount; tests point it at a fake tree.
var procRoot = "/proc"

// Processes returns the command names of running processes.
func Processes() ([]string, error) {
	comms, err := filepath.Glob(filepath.Join(procRoot, "[0-9]*", "comm"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(comms))
	for _, path := range comms {
		b, err := os.ReadFile(path)
		if err != nil {
			// The process exited between the glob and the read.
			continue
		}
		if name := strings.TrimSpace(string(b)); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
