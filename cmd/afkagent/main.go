// Package main implements the headless AFK detector plugin. It samples the
// local idle time, applies the configured tiers, and reports AFK transitions
// to a running statuscord daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tools.zach/dev/statuscord/internal/afkagent"
	"tools.zach/dev/statuscord/internal/logger"
	"tools.zach/dev/statuscord/internal/paths"
	"tools.zach/dev/statuscord/internal/pidfile"
)

// defaultDataDir returns ~/.statuscord, or ./.statuscord when the home
// directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for the agent config and log")
	server := flag.String("server", "", "Daemon URL (overrides serverUrl in the agent config)")
	poll := flag.Duration("poll", afkagent.DefaultPollInterval, "Local idle sampling interval")
	level := flag.String("log-level", "info", "Minimum log level")
	foreground := flag.Bool("foreground", false, "Also write logs to stderr")
	flag.Parse()

	if err := run(*dataDir, *server, *poll, *level, *foreground); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(dataDir, server string, poll time.Duration, level string, foreground bool) error {
	dp := paths.DataDir{Root: dataDir}
	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logOpts := logger.Options{Path: dp.AgentLog(), Level: logger.ParseLevel(level)}
	if foreground {
		logOpts.Tee = os.Stderr
	}
	log, closer, err := logger.NewLogger(logOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(log)

	pid, err := pidfile.Acquire(dp.AgentPID())
	if err != nil {
		return err
	}
	defer pid.Release()

	agent, err := afkagent.New(afkagent.Options{
		ConfigPath:   dp.AgentConfig(),
		ServerURL:    server,
		PollInterval: poll,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("afk agent starting", "config", dp.AgentConfig())
	err = agent.Run(ctx)
	log.Info("afk agent stopped")
	return err
}
