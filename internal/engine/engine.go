// Package engine is the daemon's application context.
//
// An [Engine] owns the settings store, the plugin registry, the signal slots
// and the connected plugin sessions. Every mutation is queued onto the single
// [Engine.Run] goroutine, so each resolve sees one consistent snapshot and
// the publisher is fed in dispatch order.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tools.zach/dev/statuscord/internal/controlplane"
	"tools.zach/dev/statuscord/internal/logger"
	"tools.zach/dev/statuscord/internal/plugins"
	"tools.zach/dev/statuscord/internal/priority"
	"tools.zach/dev/statuscord/internal/publisher"
	"tools.zach/dev/statuscord/internal/settings"
)

// ErrStopped is returned by calls made after [Engine.Run] has returned.
var ErrStopped = errors.New("engine stopped")

const queueSize = 256

// Publisher receives every resolved payload. *publisher.Publisher
// implements it.
type Publisher interface {
	Publish(p priority.Payload)
	SetEnabled(enabled bool)
	Enabled() bool
	Status() publisher.Status
}

// peer is the part of a control-plane session the engine uses.
// *controlplane.Session implements it.
type peer interface {
	Source() string
	SetSource(src string)
	SetLastSeenConfig(cfg json.RawMessage)
	LastSeenConfig() json.RawMessage
	Send(msg controlplane.Message) error
}

type peerInfo struct {
	domain string
}

// DefaultSourceDomains maps well-known plugin sources to the settings
// section they own.
func DefaultSourceDomains() map[string]string {
	return map[string]string{
		controlplane.SourceAFK:     settings.DomainAFK,
		controlplane.SourceSpotify: settings.DomainSpotify,
	}
}

// Options configures an [Engine].
type Options struct {
	Store     *settings.Store
	Publisher Publisher
	// Table is the priority table. Nil uses priority.DefaultTable.
	Table priority.Table
	// SourceDomains maps a handshake source to its settings domain. Nil
	// uses DefaultSourceDomains.
	SourceDomains map[string]string
	Logger        *slog.Logger
	Now           func() time.Time
}

// Engine is the daemon's state owner. It implements controlplane.Handler.
type Engine struct {
	store   *settings.Store
	pub     Publisher
	table   priority.Table
	domains map[string]string
	reg     *plugins.Registry
	log     *slog.Logger
	now     func() time.Time

	queue   chan func()
	stopped chan struct{}

	// Loop-owned state below.
	peers map[peer]*peerInfo

	afk        priority.Signal
	afkLogs    []controlplane.LogLine
	track      *controlplane.SpotifyTrack
	autoPreset string
	// catalog holds presets from the remote pack, used for names the user
	// has not defined.
	catalog []settings.Preset

	activeName  string
	activeSince time.Time

	last priority.Resolution
}

// New creates an engine over an opened settings store.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: settings store is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("engine: publisher is required")
	}
	if opts.Table == nil {
		opts.Table = priority.DefaultTable()
	}
	if err := opts.Table.Validate(); err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	if opts.SourceDomains == nil {
		opts.SourceDomains = DefaultSourceDomains()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		store:   opts.Store,
		pub:     opts.Publisher,
		table:   opts.Table,
		domains: opts.SourceDomains,
		reg:     plugins.NewRegistry(),
		log:     logger.Component(opts.Logger, "engine"),
		now:     opts.Now,
		queue:   make(chan func(), queueSize),
		stopped: make(chan struct{}),
		peers:   make(map[peer]*peerInfo),
		afk:     priority.Signal{Kind: priority.AFK},
	}
	d := e.store.Snapshot()
	e.reg.Load(d.Plugins)
	e.pub.SetEnabled(d.Presence.Enabled)
	return e, nil
}

// ///////////////////////////////////////////////
// Event Loop
// ///////////////////////////////////////////////

// Run executes queued work until ctx is cancelled. It publishes the initial
// resolution before handling anything else.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	e.recompute()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-e.queue:
			e.safe(fn)
		}
	}
}

func (e *Engine) safe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("engine task panicked", "panic", r)
		}
	}()
	fn()
}

// post queues fn. It reports false once the loop has stopped.
func (e *Engine) post(fn func()) bool {
	select {
	case e.queue <- fn:
		return true
	case <-e.stopped:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !e.post(func() { fn(); close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ///////////////////////////////////////////////
// controlplane.Handler
// ///////////////////////////////////////////////

// OnConnect tracks a new plugin session.
func (e *Engine) OnConnect(s *controlplane.Session) {
	e.post(func() { e.connect(s) })
}

// OnMessage queues msg for dispatch.
func (e *Engine) OnMessage(s *controlplane.Session, msg controlplane.Message) {
	e.post(func() { e.handle(s, msg) })
}

// OnDisconnect drops the session and any slot it alone was feeding.
func (e *Engine) OnDisconnect(s *controlplane.Session) {
	e.post(func() { e.disconnect(s) })
}

func (e *Engine) connect(p peer) {
	e.peers[p] = &peerInfo{}
}

func (e *Engine) disconnect(p peer) {
	info, ok := e.peers[p]
	if !ok {
		return
	}
	delete(e.peers, p)
	e.log.Info("plugin disconnected", "source", p.Source(), "domain", info.domain)

	if info.domain == "" || e.domainConnected(info.domain) {
		return
	}
	switch info.domain {
	case settings.DomainAFK:
		e.clearAFK()
		e.recompute()
	case settings.DomainSpotify:
		e.track = nil
		e.recompute()
	}
}

func (e *Engine) domainConnected(domain string) bool {
	for _, info := range e.peers {
		if info.domain == domain {
			return true
		}
	}
	return false
}

func (e *Engine) clearAFK() {
	e.afk = priority.Signal{Kind: priority.AFK}
}

// ///////////////////////////////////////////////
// Inputs From Collaborators
// ///////////////////////////////////////////////

// SetAutoDetected fills the AutoDetect slot with preset, or clears it when
// preset is empty.
func (e *Engine) SetAutoDetected(preset string) {
	e.post(func() {
		if preset == e.autoPreset {
			return
		}
		e.log.Info("auto-detect changed", "preset", preset)
		e.autoPreset = preset
		e.recompute()
	})
}

// SetCatalog installs presets from the remote pack.
func (e *Engine) SetCatalog(presets []settings.Preset) {
	e.post(func() {
		e.catalog = presets
		e.log.Info("preset catalog installed", "presets", len(presets))
		e.recompute()
	})
}

// SystemIdle forwards the OS idle time to the AFK plugins.
func (e *Engine) SystemIdle(idle time.Duration) {
	e.post(func() {
		msg := controlplane.SystemIdleUpdate{IdleMinutes: idle.Minutes()}
		e.sendDomain(settings.DomainAFK, nil, msg)
	})
}

// Reload re-reads the settings file after an external edit. When the
// content changed it recomputes and pushes fresh configs to the plugins.
func (e *Engine) Reload() {
	e.post(func() {
		changed, err := e.store.Reload()
		if err != nil {
			e.log.Warn("settings reload failed, keeping current values", "error", err)
			return
		}
		if !changed {
			return
		}
		e.log.Info("settings changed on disk")
		d := e.store.Snapshot()
		e.reg.Load(d.Plugins)
		if e.pub.Enabled() != d.Presence.Enabled {
			e.pub.SetEnabled(d.Presence.Enabled)
		}
		for _, domain := range []string{settings.DomainAFK, settings.DomainSpotify, settings.DomainPresence} {
			e.pushConfig(domain, nil)
		}
		e.recompute()
	})
}

// Status returns the daemon state shown by status_request.
func (e *Engine) Status(ctx context.Context) (controlplane.Status, error) {
	var st controlplane.Status
	err := e.call(ctx, func() { st = e.status() })
	return st, err
}

// Resolution returns the last resolution.
func (e *Engine) Resolution(ctx context.Context) (priority.Resolution, error) {
	var res priority.Resolution
	err := e.call(ctx, func() { res = e.last })
	return res, err
}
