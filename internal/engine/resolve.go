package engine

import (
	"tools.zach/dev/statuscord/internal/controlplane"
	"tools.zach/dev/statuscord/internal/logger"
	"tools.zach/dev/statuscord/internal/priority"
	"tools.zach/dev/statuscord/internal/settings"
)

// spotifyButton labels the link added to a rendered track.
const spotifyButton = "Listen on Spotify"

// recompute rebuilds the slots from the current state, resolves, and hands
// the payload to the publisher. It runs on the loop goroutine.
func (e *Engine) recompute() {
	d := e.store.Snapshot()

	if d.Presence.ActivePreset != e.activeName {
		e.activeName = d.Presence.ActivePreset
		e.activeSince = e.now()
	}

	signals := map[priority.Kind]priority.Signal{
		priority.Default:      e.presetSignal(priority.Default, d, d.Presence.DefaultPreset),
		priority.ManualPreset: e.presetSignal(priority.ManualPreset, d, d.Presence.ActivePreset),
		priority.AutoDetect:   e.presetSignal(priority.AutoDetect, d, e.autoPreset),
	}
	if d.AFK.Enabled && !e.reg.IsBlocked(controlplane.SourceAFK) {
		signals[priority.AFK] = e.afk
	}
	if d.Spotify.Enabled && e.track != nil {
		signals[priority.Spotify] = priority.Signal{
			Kind:    priority.Spotify,
			Active:  true,
			Playing: e.track.IsPlaying,
			Payload: trackPayload(priority.Payload{}, *e.track),
		}
	}

	res := priority.Resolve(signals, e.table, d.AFK.AFKDisabledPresets)
	if res.Winner.Kind != e.last.Winner.Kind || res.Winner.Preset != e.last.Winner.Preset {
		e.log.Info("presence owner changed", "winner", res.Winner.Kind, "preset", res.Winner.Preset, "afk_overlay", res.AFKOverlay)
	} else {
		logger.Trace(e.log, "resolved", "winner", res.Winner.Kind, "afk_overlay", res.AFKOverlay)
	}
	e.last = res
	e.pub.Publish(res.Payload)
}

// presetSignal builds the slot for a named preset. An empty or unknown name
// yields an inactive slot.
func (e *Engine) presetSignal(kind priority.Kind, d settings.Data, name string) priority.Signal {
	sig := priority.Signal{Kind: kind, Preset: name}
	if name == "" {
		return sig
	}
	p, ok := e.preset(d, name)
	if !ok {
		e.log.Warn("preset not found", "slot", kind, "preset", name)
		return sig
	}
	sig.Active = true
	sig.Payload = p.Payload
	if p.UseTimestamp && kind == priority.ManualPreset && !e.activeSince.IsZero() {
		sig.Payload.StartTimestamp = e.activeSince.Unix()
	}
	if p.UseSpotify && d.Spotify.Enabled && e.track != nil && e.track.IsPlaying {
		sig.Payload = trackPayload(sig.Payload, *e.track)
	}
	return sig
}

// preset looks name up in the user's presets, then in the catalog.
func (e *Engine) preset(d settings.Data, name string) (settings.Preset, bool) {
	if p, ok := d.Presence.Preset(name); ok {
		return p, true
	}
	for _, p := range e.catalog {
		if p.Name == name {
			return p, true
		}
	}
	return settings.Preset{}, false
}

// trackPayload renders t over base, keeping base's small image.
func trackPayload(base priority.Payload, t controlplane.SpotifyTrack) priority.Payload {
	p := priority.Payload{
		Details:    t.Title,
		State:      base.State,
		LargeImage: base.LargeImage,
		LargeText:  t.Album,
		SmallImage: base.SmallImage,
		SmallText:  base.SmallText,
		Buttons:    base.Buttons,
	}
	if t.Artist != "" {
		p.State = "by " + t.Artist
	}
	if t.AlbumArt != "" {
		p.LargeImage = t.AlbumArt
	}
	if t.StartedAt > 0 {
		p.StartTimestamp = t.StartedAt / 1000
	}
	if t.URL != "" {
		p.Buttons = []priority.Button{{Label: spotifyButton, URL: t.URL}}
	}
	return p
}
