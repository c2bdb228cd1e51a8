// Package afkagent is the headless AFK detector plugin.
//
// The agent keeps its own copy of the afk settings section, runs an
// [afk.Tracker] over local idle samples, and reports transitions to the
// daemon over a [controlplane.Client]. While the daemon streams
// system_idle_update frames the tracker follows those exclusively; local
// sampling resumes once the connection drops.
package afkagent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tools.zach/dev/statuscord/internal/afk"
	"tools.zach/dev/statuscord/internal/controlplane"
	"tools.zach/dev/statuscord/internal/idle"
	"tools.zach/dev/statuscord/internal/logger"
	"tools.zach/dev/statuscord/internal/settings"
)

// DefaultPollInterval is how often local idle time is sampled.
const DefaultPollInterval = 5 * time.Second

// Options configures an [Agent].
type Options struct {
	// ConfigPath is the agent's JSON config file.
	ConfigPath string
	// ServerURL overrides the config's serverUrl when set.
	ServerURL    string
	PollInterval time.Duration
	// Idle is the local idle source. Nil uses idle.Idle.
	Idle     func() (time.Duration, error)
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Agent is the AFK detector plugin.
type Agent struct {
	opts    Options
	log     *slog.Logger
	tracker *afk.Tracker
	client  *controlplane.Client
	// send delivers frames to the daemon; tests replace it.
	send func(controlplane.Message) error

	mu  sync.Mutex
	cfg Config
	// logsSent is the tracker log sequence last sent as afk_logs.
	logsSent uint64
}

// New loads the config and prepares the agent. Call [Agent.Run] to start.
func New(opts Options) (*Agent, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Idle == nil {
		opts.Idle = idle.Idle
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logger.Component(opts.Logger, "afkagent")
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Log: log}
	}

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	url := cfg.ServerURL
	if opts.ServerURL != "" {
		url = opts.ServerURL
	}

	a := &Agent{
		opts:    opts,
		log:     log,
		cfg:     cfg,
		tracker: afk.NewTracker(cfg.AFKTiers, afk.Options{Now: opts.Now}),
	}
	a.client = controlplane.NewClient(controlplane.ClientOptions{
		URL:        url,
		Source:     controlplane.SourceAFK,
		Domain:     settings.DomainAFK,
		ConfigFunc: a.configJSON,
		OnMessage:  func(_ *controlplane.Client, msg controlplane.Message) { a.handle(msg) },
		OnStatus:   a.onStatus,
		Logger:     opts.Logger,
	})
	a.send = a.client.Send
	return a, nil
}

// Config returns the current config.
func (a *Agent) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Tracker exposes the AFK state machine.
func (a *Agent) Tracker() *afk.Tracker { return a.tracker }

// Run connects and samples local idle time until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.client.Start()
	defer a.client.Close()

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()
	warned := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.poll(); err != nil && !warned {
				a.log.Warn("local idle source unavailable, waiting for system updates", "error", err)
				warned = true
			}
		}
	}
}

// poll takes one local sample unless the system source has authority.
func (a *Agent) poll() error {
	if !a.Config().Enabled || a.tracker.SystemConnected() {
		return nil
	}
	d, err := a.opts.Idle()
	if err != nil {
		if errors.Is(err, idle.ErrUnsupported) {
			return err
		}
		a.log.Debug("reading local idle time", "error", err)
		return nil
	}
	a.report(a.tracker.ObserveLocal(d.Minutes()))
	return nil
}

func (a *Agent) onStatus(st controlplane.ConnStatus) {
	if st == controlplane.Connected {
		// The daemon drops the AFK slot when a session ends, so a new
		// session restates the current state.
		if tier, ok := a.tracker.Current(); ok {
			idx := a.tracker.State().TierIndex
			a.sendOrLog(controlplane.AFKStatusChange{IsAFK: true, Tier: &idx, Status: tier.Status})
		}
		a.sendLogs(true)
		return
	}
	if a.tracker.SystemConnected() {
		a.log.Info("daemon connection lost, resuming local idle sampling")
		a.tracker.SetSystemConnected(false)
	}
}

func (a *Agent) configJSON() (json.RawMessage, error) {
	return json.Marshal(a.Config())
}

// ///////////////////////////////////////////////
// Inbound Messages
// ///////////////////////////////////////////////

func (a *Agent) handle(msg controlplane.Message) {
	switch m := msg.(type) {
	case controlplane.SystemIdleUpdate:
		if !a.Config().Enabled {
			return
		}
		if !a.tracker.SystemConnected() {
			a.log.Info("daemon is providing system idle time")
			a.tracker.SetSystemConnected(true)
		}
		a.report(a.tracker.ObserveSystem(m.IdleMinutes))
	case controlplane.Config:
		if m.Domain != settings.DomainAFK {
			return
		}
		if _, err := a.apply(m.Config); err != nil {
			a.log.Warn("applying afk config", "error", err)
		}
	case controlplane.UpdateSettings:
		if m.Domain != settings.DomainAFK {
			return
		}
		fresh, err := a.apply(m.Settings)
		if err != nil {
			a.log.Warn("updating afk settings", "error", err)
			return
		}
		a.sendOrLog(controlplane.Config{Domain: settings.DomainAFK, Config: fresh})
	case controlplane.SetLanguage:
		if !settings.ValidLanguage(m.Language) {
			a.log.Debug("ignoring unrecognized language", "language", m.Language)
			return
		}
		patch, _ := json.Marshal(map[string]string{"language": m.Language})
		if _, err := a.apply(patch); err != nil {
			a.log.Warn("setting language", "error", err)
		}
	case controlplane.ShowToast:
		if err := a.opts.Notifier.Notify(locale(a.Config().Language).title, m.Message); err != nil {
			a.log.Debug("notification failed", "error", err)
		}
	default:
		logger.Trace(a.log, "ignoring message", "type", msg.Type())
	}
}

// apply merges patch into the config, persists it and retunes the tracker.
// It returns the normalized config.
func (a *Agent) apply(patch json.RawMessage) (json.RawMessage, error) {
	a.mu.Lock()
	next, err := MergeConfig(a.cfg, patch)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	if err := SaveConfig(a.opts.ConfigPath, next); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	prevEnabled := a.cfg.Enabled
	a.cfg = next
	a.mu.Unlock()

	a.report(a.tracker.SetTiers(next.AFKTiers))
	if prevEnabled && !next.Enabled && a.tracker.State().IsAFK {
		a.tracker.SetSystemConnected(false)
		a.report(a.tracker.LocalInput())
	}
	return json.Marshal(next)
}

// ///////////////////////////////////////////////
// Outbound
// ///////////////////////////////////////////////

// report sends the frames and notifications for evs, then the log tail if
// it grew.
func (a *Agent) report(evs []afk.Event) {
	if len(evs) == 0 {
		return
	}
	text := locale(a.Config().Language)
	for _, ev := range evs {
		switch ev.Kind {
		case afk.Entered:
			tier := ev.TierIndex
			a.sendOrLog(controlplane.AFKStatusChange{IsAFK: true, Tier: &tier, Status: ev.Tier.Status})
			a.notify(text.title, text.enteredText(ev.Tier.Status))
		case afk.TierChanged:
			a.sendOrLog(controlplane.AFKTierChange{Tier: ev.TierIndex, Status: ev.Tier.Status})
			a.notify(text.title, text.tierText(ev.Tier.Status))
		case afk.Renewed:
			a.sendOrLog(controlplane.AFKTierChange{Tier: ev.TierIndex, Status: ev.Tier.Status})
		case afk.Returned:
			a.sendOrLog(controlplane.AFKStatusChange{IsAFK: false})
			a.notify(text.title, text.welcomeBack)
		}
		a.log.Debug("afk event", "kind", ev.Kind, "tier", ev.TierIndex, "status", ev.Tier.Status)
	}

	a.sendLogs(false)
}

// sendLogs sends the tracker log when it changed since the last send, or
// unconditionally when force is set and there is something to send.
func (a *Agent) sendLogs(force bool) {
	entries, seq := a.tracker.LogsSeq()
	a.mu.Lock()
	stale := seq == a.logsSent
	a.logsSent = seq
	a.mu.Unlock()
	if len(entries) == 0 || (stale && !force) {
		return
	}
	lines := make([]controlplane.LogLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, controlplane.LogLine{Time: e.Time, Message: e.Message})
	}
	a.sendOrLog(controlplane.AFKLogs{Logs: lines})
}

func (a *Agent) sendOrLog(msg controlplane.Message) {
	if err := a.send(msg); err != nil {
		// Offline frames are dropped; onStatus restates the state on connect.
		logger.Trace(a.log, "not sent", "type", msg.Type(), "error", err)
	}
}

func (a *Agent) notify(title, body string) {
	if err := a.opts.Notifier.Notify(title, body); err != nil {
		a.log.Debug("notification failed", "error", err)
	}
}
