// Package afk implements the AFK state machine driven by idle-duration
// samples.
//
// A [Tracker] is either ACTIVE or AFK(tier). Samples come from two sources:
// a local poll (input observed by the process itself) and a system-wide idle
// source fed over the control plane. While the system source is connected it
// has exclusive authority and local samples are ignored; local polling keeps
// running so it takes over the moment the system source goes away.
package afk

import (
	"fmt"
	"sync"
	"time"

	"tools.zach/dev/statuscord/internal/tiers"
)

// DefaultRenewInterval is how often the AFK status is re-sent while latched.
// Discord expires custom statuses after five minutes.
const DefaultRenewInterval = 5 * time.Second

// DefaultLogSize is the number of log entries the tracker retains.
const DefaultLogSize = 50

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// EventKind identifies a state machine transition.
type EventKind int

const (
	// Entered fires once on ACTIVE -> AFK.
	Entered EventKind = iota + 1
	// TierChanged fires when a higher tier is latched.
	TierChanged
	// Renewed is the periodic keep-alive while AFK. Never a notification.
	Renewed
	// Returned fires once on AFK -> ACTIVE.
	Returned
)

func (k EventKind) String() string {
	switch k {
	case Entered:
		return "entered"
	case TierChanged:
		return "tier_changed"
	case Renewed:
		return "renewed"
	case Returned:
		return "returned"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is emitted by the tracker on every transition or renewal.
type Event struct {
	Kind      EventKind
	TierIndex int
	Tier      tiers.Tier
}

// State is a snapshot of the tracker.
type State struct {
	IsAFK        bool
	TierIndex    int // -1 when not AFK
	LastActivity time.Time
}

// LogEntry is one line of the tracker's activity log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Options configures a [Tracker]. Zero values use the defaults.
type Options struct {
	RenewInterval time.Duration
	LogSize       int
	// Now is the clock; tests inject a fake.
	Now func() time.Time
}

// Tracker owns the AFK state. It is safe for concurrent use.
type Tracker struct {
	mu              sync.Mutex
	tiers           []tiers.Tier
	state           State
	systemConnected bool
	lastIdle        float64
	lastRenew       time.Time

	renewInterval time.Duration
	now           func() time.Time

	logs    []LogEntry
	logSize int
	// logSeq counts entries ever appended.
	logSeq uint64
}

// NewTracker creates a tracker in the ACTIVE state using ts (normalized).
func NewTracker(ts []tiers.Tier, opts Options) *Tracker {
	if opts.RenewInterval <= 0 {
		opts.RenewInterval = DefaultRenewInterval
	}
	if opts.LogSize <= 0 {
		opts.LogSize = DefaultLogSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		tiers:         tiers.Normalize(ts),
		state:         State{TierIndex: -1, LastActivity: opts.Now()},
		renewInterval: opts.RenewInterval,
		now:           opts.Now,
		logSize:       opts.LogSize,
	}
}

// ///////////////////////////////////////////////
// Inputs
// ///////////////////////////////////////////////

// ObserveLocal feeds a sample from the in-process poll. Ignored while the
// system source is connected.
func (t *Tracker) ObserveLocal(idleMinutes float64) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.systemConnected {
		return nil
	}
	return t.observe(idleMinutes)
}

// ObserveSystem feeds a sample from the system-wide idle source.
func (t *Tracker) ObserveSystem(idleMinutes float64) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observe(idleMinutes)
}

// LocalInput records a direct local input event. Ignored while the system
// source is connected.
func (t *Tracker) LocalInput() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.systemConnected {
		return nil
	}
	return t.observe(0)
}

// SetSystemConnected toggles system-source authority.
func (t *Tracker) SetSystemConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.systemConnected == connected {
		return
	}
	t.systemConnected = connected
	if connected {
		t.logf("system idle source connected")
	} else {
		t.logf("system idle source disconnected, using local input")
	}
}

// SystemConnected reports whether the system source currently has authority.
func (t *Tracker) SystemConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.systemConnected
}

// SetTiers replaces the tier list and re-evaluates the latched tier against
// the last observed idle time.
func (t *Tracker) SetTiers(ts []tiers.Tier) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tiers = tiers.Normalize(ts)
	if !t.state.IsAFK {
		return nil
	}

	idx := tiers.FindActive(t.lastIdle, t.tiers)
	if idx < 0 {
		return t.returnActive()
	}
	prev := t.state.TierIndex
	t.state.TierIndex = idx
	t.lastRenew = t.now()
	ev := Event{Kind: TierChanged, TierIndex: idx, Tier: t.tiers[idx]}
	if prev == idx {
		ev.Kind = Renewed
	}
	t.logf("tiers updated, latched %q", ev.Tier.Status)
	return []Event{ev}
}

// ///////////////////////////////////////////////
// Accessors
// ///////////////////////////////////////////////

// State returns a snapshot of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Current returns the latched tier and true while AFK.
func (t *Tracker) Current() (tiers.Tier, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.IsAFK {
		return tiers.Tier{}, false
	}
	return t.tiers[t.state.TierIndex], true
}

// Tiers returns a copy of the active tier list.
func (t *Tracker) Tiers() []tiers.Tier {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tiers.Tier(nil), t.tiers...)
}

// Logs returns the retained log entries, oldest first.
func (t *Tracker) Logs() []LogEntry {
	entries, _ := t.LogsSeq()
	return entries
}

// LogsSeq returns the retained entries and the number of entries appended
// over the tracker's lifetime. The count grows whenever the log does, even
// once the oldest entries start to fall off.
func (t *Tracker) LogsSeq() ([]LogEntry, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]LogEntry(nil), t.logs...), t.logSeq
}

// ///////////////////////////////////////////////
// Internal helpers
// ///////////////////////////////////////////////

// observe runs one step of the state machine. Caller holds t.mu.
func (t *Tracker) observe(idleMinutes float64) []Event {
	now := t.now()
	t.lastIdle = idleMinutes
	idx := tiers.FindActive(idleMinutes, t.tiers)

	if idx < 0 {
		t.state.LastActivity = now.Add(-time.Duration(idleMinutes * float64(time.Minute)))
		if t.state.IsAFK {
			return t.returnActive()
		}
		return nil
	}

	switch {
	case !t.state.IsAFK:
		t.state.IsAFK = true
		t.state.TierIndex = idx
		t.lastRenew = now
		t.logf("entered afk: %s", t.tiers[idx].Status)
		return []Event{{Kind: Entered, TierIndex: idx, Tier: t.tiers[idx]}}

	case idx > t.state.TierIndex:
		t.state.TierIndex = idx
		t.lastRenew = now
		t.logf("tier changed: %s", t.tiers[idx].Status)
		return []Event{{Kind: TierChanged, TierIndex: idx, Tier: t.tiers[idx]}}

	case now.Sub(t.lastRenew) >= t.renewInterval:
		// A lower tier keeps the latched one; idle only shrinks through activity.
		t.lastRenew = now
		cur := t.state.TierIndex
		return []Event{{Kind: Renewed, TierIndex: cur, Tier: t.tiers[cur]}}
	}
	return nil
}

// returnActive transitions to ACTIVE. Caller holds t.mu.
func (t *Tracker) returnActive() []Event {
	t.state.IsAFK = false
	t.state.TierIndex = -1
	t.state.LastActivity = t.now()
	t.logf("returned from afk")
	return []Event{{Kind: Returned, TierIndex: -1}}
}

// logf appends to the bounded log. Caller holds t.mu.
func (t *Tracker) logf(format string, args ...any) {
	e := LogEntry{Time: t.now(), Message: fmt.Sprintf(format, args...)}
	if len(t.logs) >= t.logSize {
		copy(t.logs, t.logs[1:])
		t.logs = t.logs[:len(t.logs)-1]
	}
	t.logs = append(t.logs, e)
	t.logSeq++
}
