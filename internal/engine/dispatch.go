package engine

import (
	"encoding/json"
	"slices"
	"strings"

	"tools.zach/dev/statuscord/internal/controlplane"
	"tools.zach/dev/statuscord/internal/logger"
	"tools.zach/dev/statuscord/internal/plugins"
	"tools.zach/dev/statuscord/internal/priority"
	"tools.zach/dev/statuscord/internal/settings"
)

// handle dispatches one message from p. It runs on the loop goroutine.
func (e *Engine) handle(p peer, msg controlplane.Message) {
	info, ok := e.peers[p]
	if !ok {
		// A message that raced the disconnect.
		return
	}
	if hs, ok := msg.(controlplane.Handshake); ok {
		e.handshake(p, info, hs)
		return
	}
	src := p.Source()
	if src == "" {
		e.log.Warn("dropping message sent before handshake", "type", msg.Type())
		e.reply(p, controlplane.ShowToast{Message: "handshake required before " + msg.Type(), ToastType: "error"})
		return
	}
	// The CLI is never dropped; it is the only way to unblock a plugin.
	if src != controlplane.SourceCLI && e.reg.IsBlocked(src) {
		logger.Trace(e.log, "dropping message from blocked plugin", "source", src, "type", msg.Type())
		return
	}

	switch m := msg.(type) {
	case controlplane.Config:
		e.mirrorConfig(p, info, m)
	case controlplane.UpdateSettings:
		e.updateSettings(p, m)
	case controlplane.AFKStatusChange:
		e.afkStatus(m)
	case controlplane.AFKTierChange:
		e.afkTier(m)
	case controlplane.AFKLogs:
		e.afkLogs = m.Logs
		logger.Trace(e.log, "afk logs received", "count", len(m.Logs))
	case controlplane.SpotifyTrack:
		e.spotifyTrack(m)
	case controlplane.SpotifyControl:
		e.forwardSpotify(p, m.Action)
	case controlplane.SpotifyControlClicked:
		e.spotifyClicked(p, m)
	case controlplane.SetPreset:
		e.setPreset(p, m)
	case controlplane.SetPluginState:
		e.setPluginState(p, m)
	case controlplane.SetLanguage:
		e.setLanguage(p, m)
	case controlplane.ShowToast:
		e.broadcast(p, m)
	case controlplane.SetPresenceEnabled:
		e.setPresenceEnabled(m)
	case controlplane.StatusRequest:
		e.reply(p, e.status())
	case controlplane.SystemIdleUpdate:
		e.log.Debug("ignoring system_idle_update sent by a plugin", "source", p.Source())
	default:
		e.log.Warn("ignoring unknown message", "source", p.Source(), "type", msg.Type())
	}
}

// ///////////////////////////////////////////////
// Session Messages
// ///////////////////////////////////////////////

func (e *Engine) handshake(p peer, info *peerInfo, hs controlplane.Handshake) {
	p.SetSource(hs.Source)
	_, known := e.reg.Get(hs.Source)
	entry := e.reg.Register(hs.Source)
	if !known {
		e.persistPlugins()
	}
	if info.domain == "" {
		info.domain = e.domains[hs.Source]
	}
	e.log.Info("plugin connected", "source", hs.Source, "id", entry.ID, "state", entry.State, "domain", info.domain)

	if entry.State == plugins.Blocked || info.domain == "" {
		return
	}
	cfg, err := e.store.Section(info.domain)
	if err != nil {
		e.log.Warn("reading config for plugin", "source", hs.Source, "error", err)
		return
	}
	e.reply(p, controlplane.Config{Domain: info.domain, Config: cfg})
}

// mirrorConfig stores the full config a plugin announced as its own.
func (e *Engine) mirrorConfig(p peer, info *peerInfo, m controlplane.Config) {
	if info.domain == "" {
		info.domain = m.Domain
	}
	p.SetLastSeenConfig(m.Config)
	fresh, err := e.store.Merge(m.Domain, m.Config)
	if err != nil {
		e.log.Warn("mirroring plugin config", "source", p.Source(), "domain", m.Domain, "error", err)
		return
	}
	e.log.Debug("plugin config mirrored", "source", p.Source(), "domain", m.Domain)
	// The normalized result goes back so a reply to the handshake that
	// raced this frame does not leave the plugin on the older values.
	e.reply(p, controlplane.Config{Domain: m.Domain, Config: fresh})
	e.pushConfig(m.Domain, p)
	e.recompute()
}

func (e *Engine) updateSettings(p peer, m controlplane.UpdateSettings) {
	if len(m.Settings) == 0 {
		e.log.Warn("settings update carried no fields", "source", p.Source(), "domain", m.Domain)
		e.reply(p, controlplane.ShowToast{Message: "settings update rejected: no fields to apply", ToastType: "error"})
		return
	}
	fresh, err := e.store.Merge(m.Domain, m.Settings)
	if err != nil {
		e.log.Warn("updating settings", "source", p.Source(), "domain", m.Domain, "error", err)
		e.reply(p, controlplane.ShowToast{Message: "settings update rejected: " + err.Error(), ToastType: "error"})
		return
	}
	e.log.Info("settings updated", "source", p.Source(), "domain", m.Domain)
	e.reply(p, controlplane.Config{Domain: m.Domain, Config: fresh})
	e.pushConfig(m.Domain, p)
	e.recompute()
}

func (e *Engine) afkStatus(m controlplane.AFKStatusChange) {
	if !m.IsAFK {
		e.clearAFK()
		e.recompute()
		return
	}
	status, ok := e.afkStatusText(m.Tier, m.Status)
	if !ok {
		tier := -1
		if m.Tier != nil {
			tier = *m.Tier
		}
		e.log.Warn("ignoring afk status without a resolvable status", "tier", tier)
		return
	}
	e.afk = priority.Signal{Kind: priority.AFK, Active: true, Status: status}
	e.recompute()
}

func (e *Engine) afkTier(m controlplane.AFKTierChange) {
	status, ok := e.afkStatusText(&m.Tier, m.Status)
	if !ok {
		e.log.Warn("ignoring afk tier change without a resolvable status", "tier", m.Tier)
		return
	}
	e.afk = priority.Signal{Kind: priority.AFK, Active: true, Status: status}
	e.recompute()
}

// afkStatusText returns status, or the text of the mirrored tier at index
// tier when status is empty.
func (e *Engine) afkStatusText(tier *int, status string) (string, bool) {
	if status = strings.TrimSpace(status); status != "" {
		return status, true
	}
	if tier == nil {
		return "", false
	}
	tiers := e.store.Snapshot().AFK.AFKTiers
	if *tier < 0 || *tier >= len(tiers) || tiers[*tier].Status == "" {
		return "", false
	}
	return tiers[*tier].Status, true
}

func (e *Engine) spotifyTrack(m controlplane.SpotifyTrack) {
	if m.Title == "" && !m.IsPlaying {
		e.track = nil
	} else {
		e.track = &m
	}
	e.recompute()
}

// spotifyClicked flips the playing state before the plugin confirms it, so
// the presence follows the button press without waiting for a track update.
func (e *Engine) spotifyClicked(p peer, m controlplane.SpotifyControlClicked) {
	if e.track != nil {
		switch m.Action {
		case "play":
			e.track.IsPlaying = true
		case "pause":
			e.track.IsPlaying = false
		case "playpause":
			e.track.IsPlaying = !e.track.IsPlaying
		}
		e.recompute()
	}
	e.forwardSpotify(p, m.Action)
}

func (e *Engine) forwardSpotify(from peer, action string) {
	if n := e.sendDomain(settings.DomainSpotify, from, controlplane.SpotifyControl{Action: action}); n == 0 {
		e.reply(from, controlplane.ShowToast{Message: "spotify plugin is not connected", ToastType: "error"})
	}
}

func (e *Engine) setPreset(p peer, m controlplane.SetPreset) {
	name := strings.TrimSpace(m.Name)
	if name != "" {
		d := e.store.Snapshot()
		if _, ok := e.preset(d, name); !ok {
			e.reply(p, controlplane.ShowToast{Message: "unknown preset " + name, ToastType: "error"})
			return
		}
	}
	if err := e.store.Update(func(d *settings.Data) { d.Presence.ActivePreset = name }); err != nil {
		e.log.Error("persisting active preset", "preset", name, "error", err)
		return
	}
	e.log.Info("preset selected", "preset", name, "source", p.Source())
	e.pushConfig(settings.DomainPresence, nil)
	e.recompute()
}

func (e *Engine) setPluginState(p peer, m controlplane.SetPluginState) {
	if m.Blocked && m.Name == controlplane.SourceCLI {
		e.reply(p, controlplane.ShowToast{Message: controlplane.SourceCLI + " cannot be blocked", ToastType: "error"})
		return
	}
	if m.Blocked {
		e.reg.Block(m.Name)
	} else if _, err := e.reg.Unblock(m.Name); err != nil {
		e.reply(p, controlplane.ShowToast{Message: err.Error(), ToastType: "error"})
		return
	}
	e.persistPlugins()
	e.log.Info("plugin state changed", "plugin", m.Name, "blocked", m.Blocked)

	if !m.Blocked {
		return
	}
	// Drop whatever the plugin was contributing.
	switch e.domains[m.Name] {
	case settings.DomainAFK:
		e.clearAFK()
	case settings.DomainSpotify:
		e.track = nil
	}
	e.recompute()
}

func (e *Engine) setLanguage(p peer, m controlplane.SetLanguage) {
	if !settings.ValidLanguage(m.Language) {
		e.log.Warn("ignoring unrecognized language", "language", m.Language)
		return
	}
	err := e.store.Update(func(d *settings.Data) {
		d.AFK.Language = m.Language
		d.Spotify.Language = m.Language
		d.Presence.Language = m.Language
	})
	if err != nil {
		e.log.Error("persisting language", "error", err)
		return
	}
	e.broadcast(p, m)
}

func (e *Engine) setPresenceEnabled(m controlplane.SetPresenceEnabled) {
	if err := e.store.Update(func(d *settings.Data) { d.Presence.Enabled = m.Enabled }); err != nil {
		e.log.Error("persisting presence toggle", "error", err)
	}
	e.pub.SetEnabled(m.Enabled)
}

// ///////////////////////////////////////////////
// Outbound Helpers
// ///////////////////////////////////////////////

func (e *Engine) reply(p peer, msg controlplane.Message) {
	if err := p.Send(msg); err != nil {
		e.log.Debug("reply failed", "source", p.Source(), "type", msg.Type(), "error", err)
	}
}

// broadcast sends msg to every session except from.
func (e *Engine) broadcast(from peer, msg controlplane.Message) int {
	n := 0
	for p := range e.peers {
		if p == from || e.reg.IsBlocked(p.Source()) {
			continue
		}
		if err := p.Send(msg); err != nil {
			e.log.Debug("broadcast failed", "source", p.Source(), "type", msg.Type(), "error", err)
			continue
		}
		n++
	}
	return n
}

// sendDomain sends msg to the sessions owning domain, except from.
func (e *Engine) sendDomain(domain string, from peer, msg controlplane.Message) int {
	n := 0
	for p, info := range e.peers {
		if p == from || info.domain != domain || e.reg.IsBlocked(p.Source()) {
			continue
		}
		if err := p.Send(msg); err != nil {
			e.log.Debug("send failed", "source", p.Source(), "type", msg.Type(), "error", err)
			continue
		}
		n++
	}
	return n
}

// pushConfig sends the current domain section to its sessions, except from.
func (e *Engine) pushConfig(domain string, from peer) {
	cfg, err := e.store.Section(domain)
	if err != nil {
		e.log.Warn("reading config", "domain", domain, "error", err)
		return
	}
	e.sendDomain(domain, from, controlplane.Config{Domain: domain, Config: cfg})
}

func (e *Engine) persistPlugins() {
	snap := e.reg.Snapshot()
	if err := e.store.Update(func(d *settings.Data) { d.Plugins = snap }); err != nil {
		e.log.Error("persisting plugin registry", "error", err)
	}
}

// status builds the status_request reply.
func (e *Engine) status() controlplane.Status {
	d := e.store.Snapshot()
	st := controlplane.Status{
		Discord:         string(e.pub.Status()),
		PresenceEnabled: e.pub.Enabled(),
		Winner:          e.last.Winner.Kind.String(),
		ActivePreset:    d.Presence.ActivePreset,
		Details:         e.last.Payload.Details,
		State:           e.last.Payload.State,
		AFK:             e.afk.Active,
		AFKStatus:       e.afk.Status,
		Plugins:         []controlplane.PluginStatus{},
		AFKLog:          e.afkLogs,
	}
	if e.track != nil && e.track.IsPlaying {
		st.Playing = trackLine(*e.track)
	}

	connected := make([]string, 0, len(e.peers))
	configs := make(map[string]json.RawMessage)
	for p := range e.peers {
		connected = append(connected, p.Source())
		if cfg := p.LastSeenConfig(); len(cfg) > 0 {
			configs[p.Source()] = cfg
		}
	}
	for _, entry := range e.reg.Entries() {
		st.Plugins = append(st.Plugins, controlplane.PluginStatus{
			Name:      entry.Name,
			ID:        entry.ID,
			State:     string(entry.State),
			Connected: slices.Contains(connected, entry.Name),
			Config:    configs[entry.Name],
		})
	}
	return st
}

func trackLine(t controlplane.SpotifyTrack) string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Title + " - " + t.Artist
}
