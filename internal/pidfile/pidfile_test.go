package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireWritesPIDAndToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	p, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release()

	if len(p.Token()) != 16 {
		t.Errorf("token %q, want 16 hex chars", p.Token())
	}
	// Read through the held handle; Windows refuses a second reader.
	buf := make([]byte, 64)
	n, err := p.f.ReadAt(buf, 0)
	if n == 0 {
		t.Fatalf("ReadAt: %v", err)
	}
	want := strconv.Itoa(os.Getpid()) + ":" + p.Token()
	if got := string(buf[:n]); got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestAcquireTwiceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	p, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release()

	_, err = Acquire(path)
	if !errors.Is(err, ErrRunning) {
		t.Fatalf("second Acquire error = %v, want ErrRunning", err)
	}
	var re *RunningError
	if !errors.As(err, &re) {
		t.Fatalf("error %T is not a RunningError", err)
	}
}

func TestAcquireTakesOverStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := os.WriteFile(path, []byte("99999:staletoken"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over stale file: %v", err)
	}
	p.Release()
}

func TestReleaseRemovesOwnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	p, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	p.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("PID file still present after Release")
	}
	p.Release()
}

func TestReleaseKeepsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	p, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	p.token = "someone-else"
	p.Release()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("foreign PID file removed: %v", err)
	}
}

func TestReleaseNil(t *testing.T) {
	var p *File
	p.Release()
}

func TestCheck(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		alive, pid := Check(filepath.Join(t.TempDir(), "daemon.pid"))
		if alive || pid != 0 {
			t.Errorf("Check = %v, %d", alive, pid)
		}
	})

	t.Run("stale file removed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "daemon.pid")
		os.WriteFile(path, []byte("99999:staletoken"), 0o600)
		if alive, _ := Check(path); alive {
			t.Error("stale file reported alive")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("stale file not removed")
		}
	})

	t.Run("held file alive", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "daemon.pid")
		p, err := Acquire(path)
		if err != nil {
			t.Fatal(err)
		}
		defer p.Release()
		if alive, _ := Check(path); !alive {
			t.Error("held file reported stale")
		}
	})
}

func TestRunningErrorMessage(t *testing.T) {
	if got := (&RunningError{PID: 42}).Error(); !strings.Contains(got, "pid 42") {
		t.Errorf("Error() = %q", got)
	}
	if got := (&RunningError{}).Error(); got != ErrRunning.Error() {
		t.Errorf("Error() = %q", got)
	}
}
