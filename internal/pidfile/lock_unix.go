//go:build !windows

package pidfile

import (
	"fmt"
	"os"
	"syscall"
)

// lock takes a non-blocking exclusive flock(2).
func lock(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fmt.Errorf("flock %s: %w", f.Name(), err)
	}
	return nil
}

func unlock(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("unflock %s: %w", f.Name(), err)
	}
	return nil
}
