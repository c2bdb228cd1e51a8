package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	rootpkg "tools.zach/dev/statuscord"
	"tools.zach/dev/statuscord/internal/autodetect"
	"tools.zach/dev/statuscord/internal/catalog"
	"tools.zach/dev/statuscord/internal/config"
	"tools.zach/dev/statuscord/internal/controlplane"
	"tools.zach/dev/statuscord/internal/discord"
	"tools.zach/dev/statuscord/internal/engine"
	"tools.zach/dev/statuscord/internal/idle"
	"tools.zach/dev/statuscord/internal/paths"
	"tools.zach/dev/statuscord/internal/publisher"
	"tools.zach/dev/statuscord/internal/settings"
	"tools.zach/dev/statuscord/internal/update"
	"tools.zach/dev/statuscord/internal/watch"
)

// settingsSettle coalesces the bursts of events an editor produces on save.
const settingsSettle = 250 * time.Millisecond

// seedConfig writes the documented default config on first run.
func seedConfig(dp paths.DataDir) error {
	if _, err := os.Stat(dp.Config()); !os.IsNotExist(err) {
		return nil
	}
	return os.WriteFile(dp.Config(), rootpkg.DefaultConfigTOML, 0o644)
}

// daemon holds the wired components. It is built by [newDaemon] and run by
// [daemon.run]; tests build it with a fake transport.
type daemon struct {
	cfg      *config.Config
	dataDir  paths.DataDir
	version  string
	log      *slog.Logger
	store    *settings.Store
	pub      *publisher.Publisher
	engine   *engine.Engine
	server   *controlplane.Server
	watcher  *watch.Watcher
	detector *autodetect.Detector
	// idle is the system idle source; tests replace it.
	idle func() (time.Duration, error)
	// manifestURL is the release manifest; empty skips the update check.
	manifestURL string
}

// newDaemon opens the settings store and wires every component over t.
func newDaemon(cfg *config.Config, dp paths.DataDir, ver string, t publisher.Transport, log *slog.Logger) (*daemon, error) {
	if log == nil {
		log = slog.Default()
	}
	store, err := settings.Open(dp.Settings())
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}

	pubOpts := cfg.PublisherOptions()
	pubOpts.Enabled = store.Snapshot().Presence.Enabled
	pubOpts.Logger = log
	pubOpts.OnStatus = func(s publisher.Status) {
		log.Debug("discord status", "status", s)
	}
	pub := publisher.New(t, pubOpts)

	table, err := cfg.PriorityTable()
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engine.Options{
		Store:     store,
		Publisher: pub,
		Table:     table,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	srvOpts := cfg.ServerOptions()
	srvOpts.Logger = log
	srv := controlplane.NewServer(eng, srvOpts)

	w, err := watch.New(dp.Settings(), watch.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("watch settings: %w", err)
	}
	if w.Polling() {
		log.Info("using polling mode for settings file")
	}

	return &daemon{
		cfg:      cfg,
		dataDir:  dp,
		version:  ver,
		log:      log,
		store:    store,
		pub:      pub,
		engine:   eng,
		server:   srv,
		watcher:  w,
		detector: autodetect.NewDetector(cfg.AutoDetect.Rules, autodetect.Processes, log),
		idle:     idle.Idle,
	}, nil
}

// run starts the daemon with the real Discord transport.
func run(ctx context.Context, cfg *config.Config, dp paths.DataDir, ver string, log *slog.Logger) error {
	client := discord.NewClient(cfg.Discord.AppID, discord.WithLogger(log))
	d, err := newDaemon(cfg, dp, ver, client, log)
	if err != nil {
		return err
	}
	d.manifestURL = update.ManifestURL()
	if err := d.server.Listen(); err != nil {
		d.watcher.Close()
		return err
	}
	return d.run(ctx)
}

// run supervises every component until ctx is cancelled or one fails.
func (d *daemon) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.engine.Run(ctx) })
	g.Go(func() error { return d.server.Serve(ctx) })
	g.Go(func() error {
		err := d.pub.Run(ctx)
		if errors.Is(err, publisher.ErrGaveUp) {
			// Plugins stay connected; presence resumes on restart.
			d.log.Error("giving up on discord", "error", err)
			return nil
		}
		return err
	})
	g.Go(func() error { return d.watcher.Run(ctx, settingsSettle, d.engine.Reload) })
	g.Go(func() error {
		return d.detector.Run(ctx, d.cfg.AutoDetectInterval(), d.engine.SetAutoDetected)
	})
	if interval := d.cfg.SystemIdleInterval(); interval > 0 {
		g.Go(func() error { return idle.Feed(ctx, interval, d.idle, d.engine.SystemIdle, d.log) })
	}
	if d.cfg.Catalog.Enabled {
		g.Go(func() error {
			d.loadCatalog(ctx)
			return nil
		})
	}
	if d.manifestURL != "" {
		g.Go(func() error {
			_, _, _ = update.Check(ctx, d.manifestURL, d.version, d.log)
			return nil
		})
	}

	return g.Wait()
}

// loadCatalog fetches the preset pack and installs the presets the user has
// not defined. Failures leave the engine without a catalog.
func (d *daemon) loadCatalog(ctx context.Context) {
	src := catalog.Source{URL: d.cfg.Catalog.URL, File: d.cfg.Catalog.File}
	cat, err := catalog.Fetch(ctx, src, d.dataDir.CatalogCache())
	if cat == nil {
		if ctx.Err() == nil {
			d.log.Warn("preset catalog unavailable", "error", err)
		}
		return
	}
	if err != nil {
		d.log.Warn("preset catalog fetch used fallback", "error", err)
	}
	d.engine.SetCatalog(catalog.Fill(d.store.Snapshot().Presence.Presets, cat))
}
