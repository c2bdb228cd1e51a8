// Package publisher pushes the resolved activity to the Rich Presence
// transport.
//
// A [Publisher] is the only writer to the transport. [Publisher.Publish]
// just records the latest payload; the [Publisher.Run] goroutine debounces
// bursts into one send, skips payloads identical to the last one sent, and
// supervises the connection with a two-tier fixed backoff.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tools.zach/dev/statuscord/internal/discord"
	"tools.zach/dev/statuscord/internal/logger"
	"tools.zach/dev/statuscord/internal/priority"
)

// ErrGaveUp is returned by [Publisher.Run] after MaxAttempts consecutive
// failed connection attempts.
var ErrGaveUp = errors.New("gave up connecting to discord")

var errConnectionLost = errors.New("discord connection lost")

// Defaults.
const (
	DefaultDebounce      = 300 * time.Millisecond
	DefaultShortDelay    = 5 * time.Second
	DefaultLongDelay     = 30 * time.Second
	DefaultShortAttempts = 10
	DefaultMaxAttempts   = 10000
	connectTimeout       = 10 * time.Second
)

// Transport is the Rich Presence connection. *discord.Client implements it.
type Transport interface {
	Connect(ctx context.Context) error
	SetActivity(a *discord.Activity) error
	ClearActivity() error
	// Done is closed when the current connection is lost.
	Done() <-chan struct{}
	Close() error
}

// Status is the transport state shown by status indicators.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusGaveUp       Status = "gave_up"
)

// Options configures a [Publisher]. Zero values use the defaults.
type Options struct {
	Debounce time.Duration
	// ShortDelay is used for the first ShortAttempts consecutive failures,
	// LongDelay for every failure after that until a connect succeeds.
	ShortDelay    time.Duration
	LongDelay     time.Duration
	ShortAttempts int
	MaxAttempts   int
	// Enabled is the initial publishing state.
	Enabled  bool
	OnStatus func(Status)
	Logger   *slog.Logger
}

// Publisher debounces and publishes activity payloads.
type Publisher struct {
	t    Transport
	opts Options
	log  *slog.Logger
	wake chan struct{}

	// after is the backoff clock; tests replace it.
	after func(time.Duration) <-chan time.Time

	mu        sync.Mutex
	latest    priority.Payload
	hasLatest bool
	sentHash  string
	cleared   bool
	enabled   bool
	status    Status
	sends     int
}

// New creates a publisher for t.
func New(t Transport, opts Options) *Publisher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.ShortDelay <= 0 {
		opts.ShortDelay = DefaultShortDelay
	}
	if opts.LongDelay <= 0 {
		opts.LongDelay = DefaultLongDelay
	}
	if opts.ShortAttempts <= 0 {
		opts.ShortAttempts = DefaultShortAttempts
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Publisher{
		t:       t,
		opts:    opts,
		log:     logger.Component(opts.Logger, "publisher"),
		wake:    make(chan struct{}, 1),
		after:   time.After,
		enabled: opts.Enabled,
		status:  StatusDisconnected,
	}
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Publish records p as the latest payload. The send happens on the Run
// goroutine after the debounce window.
func (p *Publisher) Publish(payload priority.Payload) {
	p.mu.Lock()
	p.latest = payload
	p.hasLatest = true
	p.mu.Unlock()
	p.signal()
}

// SetEnabled turns publishing on or off. Disabling clears the activity once;
// enabling republishes the latest payload.
func (p *Publisher) SetEnabled(enabled bool) {
	p.mu.Lock()
	changed := p.enabled != enabled
	p.enabled = enabled
	if enabled && changed {
		p.sentHash = ""
	}
	p.mu.Unlock()
	if changed {
		p.log.Info("presence publishing toggled", "enabled", enabled)
		p.signal()
	}
}

// Enabled reports whether publishing is on.
func (p *Publisher) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Status returns the transport state.
func (p *Publisher) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Sends returns the number of transport writes performed.
func (p *Publisher) Sends() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sends
}

// Run connects to the transport and publishes until ctx is cancelled. It
// returns nil on cancellation and [ErrGaveUp] when the retry budget is spent.
func (p *Publisher) Run(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return p.shutdown()
		}

		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := p.t.Connect(cctx)
		cancel()
		if err != nil {
			failures++
			if failures >= p.opts.MaxAttempts {
				p.setStatus(StatusGaveUp)
				return fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, failures, err)
			}
			delay := p.opts.ShortDelay
			if failures > p.opts.ShortAttempts {
				delay = p.opts.LongDelay
			}
			if failures == 1 || failures == p.opts.ShortAttempts+1 {
				p.log.Warn("discord unavailable, retrying", "attempt", failures, "delay", delay, "error", err)
			} else {
				p.log.Debug("discord still unavailable", "attempt", failures, "delay", delay)
			}
			p.setStatus(StatusReconnecting)
			select {
			case <-ctx.Done():
				return p.shutdown()
			case <-p.after(delay):
			}
			continue
		}

		failures = 0
		p.setStatus(StatusConnected)
		p.log.Info("connected to discord")
		p.mu.Lock()
		p.sentHash = ""
		p.cleared = false
		p.mu.Unlock()

		if err := p.serve(ctx); err != nil {
			p.log.Warn("discord connection lost", "error", err)
			p.setStatus(StatusReconnecting)
		}
	}
}

// ///////////////////////////////////////////////
// Internal helpers
// ///////////////////////////////////////////////

func (p *Publisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Publisher) setStatus(s Status) {
	p.mu.Lock()
	changed := p.status != s
	p.status = s
	p.mu.Unlock()
	if changed && p.opts.OnStatus != nil {
		p.opts.OnStatus(s)
	}
}

func (p *Publisher) shutdown() error {
	if err := p.t.Close(); err != nil {
		p.log.Debug("closing discord transport", "error", err)
	}
	p.setStatus(StatusDisconnected)
	return nil
}

// serve publishes while connected. It returns nil when ctx ends and an error
// when the connection is lost.
func (p *Publisher) serve(ctx context.Context) error {
	done := p.t.Done()
	if err := p.flush(); err != nil {
		return err
	}

	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return errConnectionLost
		case <-p.wake:
			// The window opens on the first change; later changes in the
			// window only replace the payload.
			if timerC == nil {
				timerC = time.After(p.opts.Debounce)
			}
		case <-timerC:
			timerC = nil
			if err := p.flush(); err != nil {
				return err
			}
		}
	}
}

// flush sends the latest state if it differs from what was last sent.
func (p *Publisher) flush() error {
	p.mu.Lock()
	enabled, cleared := p.enabled, p.cleared
	payload, has := p.latest, p.hasLatest
	sent := p.sentHash
	p.mu.Unlock()

	if !enabled {
		if cleared {
			return nil
		}
		if err := p.t.ClearActivity(); err != nil {
			return fmt.Errorf("clear activity: %w", err)
		}
		p.mu.Lock()
		p.cleared, p.sentHash = true, ""
		p.sends++
		p.mu.Unlock()
		return nil
	}
	if !has {
		return nil
	}
	hash := payload.Hash()
	if hash == sent {
		return nil
	}

	var err error
	if payload.IsZero() {
		err = p.t.ClearActivity()
	} else {
		err = p.t.SetActivity(ToActivity(payload))
	}
	if err != nil {
		return fmt.Errorf("set activity: %w", err)
	}
	logger.Trace(p.log, "activity published", "hash", hash, "details", payload.Details, "state", payload.State)

	p.mu.Lock()
	p.sentHash, p.cleared = hash, false
	p.sends++
	p.mu.Unlock()
	return nil
}

// maxButtons is the number of buttons Discord displays.
const maxButtons = 2

// ToActivity converts a resolved payload to the transport's activity.
func ToActivity(p priority.Payload) *discord.Activity {
	a := &discord.Activity{Details: p.Details, State: p.State}
	if p.LargeImage != "" || p.LargeText != "" || p.SmallImage != "" || p.SmallText != "" {
		a.Assets = &discord.Assets{
			LargeImage: p.LargeImage,
			LargeText:  p.LargeText,
			SmallImage: p.SmallImage,
			SmallText:  p.SmallText,
		}
	}
	if p.StartTimestamp > 0 {
		a.Timestamps = &discord.Timestamps{Start: p.StartTimestamp}
	}
	for i, b := range p.Buttons {
		if i == maxButtons {
			break
		}
		if b.Label == "" || b.URL == "" {
			continue
		}
		a.Buttons = append(a.Buttons, discord.Button{Label: b.Label, URL: b.URL})
	}
	return a
}
