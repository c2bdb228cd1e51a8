// Package main implements the statuscord daemon, which accepts presence
// signals from plugins and publishes the winning one as Discord Rich
// Presence.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"tools.zach/dev/statuscord/internal/config"
	"tools.zach/dev/statuscord/internal/logger"
	"tools.zach/dev/statuscord/internal/paths"
	"tools.zach/dev/statuscord/internal/pidfile"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//   - goreleaser: -X main.version={{.Version}}  -> "0.1.0"
//   - make build: -X main.version=$(VERSION)    -> "0.0.0-dev+05ffee5"
//
// When ldflags are not set (bare go build), resolveVersion reads the VCS info
// that Go embeds automatically.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags it is returned as-is; otherwise the embedded VCS revision and dirty
// state are used to construct a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// defaultDataDir returns ~/.statuscord, or ./.statuscord when the home
// directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// printTail writes the last n lines of the daemon log to w.
func printTail(w io.Writer, dp paths.DataDir, n int) error {
	tail, err := logger.ReadTail(dp.Log(), n)
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	if tail != "" {
		fmt.Fprintln(w, tail)
	}
	return nil
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for config, settings, and logs")
	foreground := flag.Bool("foreground", false, "Also write logs to stderr")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	tail := flag.Int("tail", 0, "Print the last N lines of the daemon log and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(resolveVersion())
		return
	}

	dp := paths.DataDir{Root: *dataDir}

	if *tail > 0 {
		if err := printTail(os.Stdout, dp, *tail); err != nil {
			fmt.Fprintf(os.Stderr, "statuscord: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create data dir: %v\n", err)
		os.Exit(1)
	}

	if alive, pid := pidfile.Check(dp.PID()); alive {
		fmt.Fprintf(os.Stderr, "daemon already running (pid %d)\n", pid)
		os.Exit(1)
	}

	if err := seedConfig(dp); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", err)
	}

	cfg, err := config.Load(dp.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config: %v\n", err)
		os.Exit(1)
	}

	logOpts := logger.Options{
		Path:      dp.Log(),
		Level:     logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
	}
	if *foreground {
		logOpts.Tee = os.Stderr
	}
	log, logCloser, err := logger.NewLogger(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: init logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	slog.Info("statuscord starting", "version", ver, "data_dir", dp.Root)

	pid, err := pidfile.Acquire(dp.PID())
	if err != nil {
		logger.Fail(log, "failed to take PID file", "error", err)
		os.Exit(1)
	}
	defer pid.Release()

	// SIGTERM is never delivered on Windows; Ctrl+C and console close arrive
	// as os.Interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, dp, ver, log); err != nil {
		logger.Fail(log, "daemon stopped", "error", err)
		pid.Release()
		logCloser.Close()
		os.Exit(1)
	}
	slog.Info("statuscord stopped")
}
