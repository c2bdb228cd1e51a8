// Tests for the file watcher: event delivery through fsnotify and polling,
// rename-replace detection, filtering of sibling files, and Run settling.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tools.zach/dev/statuscord/internal/atomicfile"
)

func expectEvent(t *testing.T, w *Watcher, within time.Duration) {
	t.Helper()
	select {
	case <-w.Events():
	case <-time.After(within):
		t.Fatal("no change event")
	}
}

func expectNoEvent(t *testing.T, w *Watcher, within time.Duration) {
	t.Helper()
	select {
	case <-w.Events():
		t.Fatal("unexpected change event")
	case <-time.After(within):
	}
}

// ///////////////////////////////////////////////
// fsnotify Tests
// ///////////////////////////////////////////////

func TestAtomicReplaceTriggersEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	os.WriteFile(path, []byte(`{"v":1}`), 0o644)

	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	time.Sleep(100 * time.Millisecond)

	if err := atomicfile.Write(path, []byte(`{"v":2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, w, 5*time.Second)
}

func TestSiblingFilesIgnored(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}
	time.Sleep(100 * time.Millisecond)

	os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o644)
	expectNoEvent(t, w, 300*time.Millisecond)
}

// ///////////////////////////////////////////////
// Polling Tests
// ///////////////////////////////////////////////

func TestPollingDetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	w, err := New(path, WithPolling(), WithPollInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if !w.Polling() {
		t.Fatal("Polling() = false")
	}
	time.Sleep(50 * time.Millisecond)

	os.WriteFile(path, []byte(`{"changed":true}`), 0o644)
	expectEvent(t, w, 2*time.Second)
}

func TestPollingDetectsCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	w, err := New(path, WithPolling(), WithPollInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	time.Sleep(50 * time.Millisecond)

	os.WriteFile(path, []byte(`{}`), 0o644)
	expectEvent(t, w, 2*time.Second)
}

func TestCloseIdempotent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// ///////////////////////////////////////////////
// Run Tests
// ///////////////////////////////////////////////

func TestRunCoalescesBurst(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "settings.json"), WithPolling(), WithPollInterval(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	calls := make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 50*time.Millisecond, func() { calls <- struct{}{} }) }()

	for range 3 {
		w.notify()
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange not called")
	}
	select {
	case <-calls:
		t.Fatal("burst reported twice")
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
