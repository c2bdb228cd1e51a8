//go:build linux

package autodetect

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestProcessesReadsComm(t *testing.T) {
	root := t.TempDir()
	for pid, comm := range map[string]string{"1": "init\n", "42": "code\n", "self": "ignored\n"} {
		dir := filepath.Join(root, pid)
		os.MkdirAll(dir, 0o755)
		os.WriteFile(filepath.Join(dir, "comm"), []byte(comm), 0o644)
	}
	old := procRoot
	procRoot = root
	t.Cleanup(func() { procRoot = old })

	names, err := Processes()
	if err != nil {
		t.Fatalf("Processes: %v", err)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"code", "init"}) {
		t.Errorf("Processes() = %v", names)
	}
}
