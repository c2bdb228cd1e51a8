// Package pidfile keeps a single instance of a process per data directory.
//
// The file holds "PID:TOKEN" and stays open with an advisory lock for the
// owner's lifetime. A file that exists but is not locked belongs to a process
// that died without cleaning up.
package pidfile

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrRunning is wrapped by the error [Acquire] returns when another live
// process holds the file.
var ErrRunning = errors.New("already running")

// RunningError names the process holding the lock. PID is 0 when the file
// content could not be parsed.
type RunningError struct {
	PID int
}

func (e *RunningError) Error() string {
	if e.PID == 0 {
		return ErrRunning.Error()
	}
	return fmt.Sprintf("%s (pid %d)", ErrRunning, e.PID)
}

func (e *RunningError) Unwrap() error { return ErrRunning }

// File is a held PID file.
type File struct {
	path  string
	token string
	f     *os.File
}

// Acquire locks path and writes the current PID to it. A stale file left by
// a dead process is taken over.
func Acquire(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lock(f); err != nil {
		f.Close()
		return nil, &RunningError{PID: readPID(path)}
	}

	p := &File{path: path, token: newToken(), f: f}
	if err := p.write(); err != nil {
		_ = unlock(f)
		f.Close()
		return nil, err
	}
	return p, nil
}

func (p *File) write() error {
	if err := p.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := p.f.WriteAt([]byte(fmt.Sprintf("%d:%s", os.Getpid(), p.token)), 0); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// Token identifies this holder. Release only removes a file carrying it.
func (p *File) Token() string { return p.token }

// Release unlocks and closes the file, then removes it if it still carries
// this holder's token. It is safe to call more than once.
func (p *File) Release() {
	if p == nil || p.f == nil {
		return
	}
	_ = unlock(p.f)
	p.f.Close()
	p.f = nil

	data, err := os.ReadFile(p.path)
	if err != nil {
		return
	}
	if _, tok, ok := strings.Cut(string(data), ":"); ok && tok == p.token {
		os.Remove(p.path)
	}
}

// Check reports whether a live process holds path. A stale file is removed.
func Check(path string) (alive bool, pid int) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}
	if err := lock(f); err != nil {
		f.Close()
		return true, readPID(path)
	}
	_ = unlock(f)
	f.Close()
	os.Remove(path)
	return false, 0
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	head, _, _ := strings.Cut(string(data), ":")
	pid, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return pid
}

func newToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
