// Package autodetect maps running processes to presence presets.
//
// Rules are checked in order against every process name and the first rule
// with a matching process wins. Patterns are doublestar globs compared
// case-insensitively; on Windows a trailing ".exe" is optional.
package autodetect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/statuscord/internal/logger"
)

// ErrUnsupported is returned by [Processes] on platforms without a process
// listing.
var ErrUnsupported = errors.New("process listing not supported on this platform")

// DefaultInterval is the default poll interval.
const DefaultInterval = 15 * time.Second

// Rule selects Preset while a process matching Pattern runs.
type Rule struct {
	Pattern string `toml:"pattern" json:"pattern"`
	Preset  string `toml:"preset" json:"preset"`
}

// Validate reports a rule with an empty field or a malformed pattern.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return errors.New("autodetect rule: pattern is empty")
	}
	if strings.TrimSpace(r.Preset) == "" {
		return fmt.Errorf("autodetect rule %q: preset is empty", r.Pattern)
	}
	if !doublestar.ValidatePattern(strings.ToLower(r.Pattern)) {
		return fmt.Errorf("autodetect rule %q: invalid pattern", r.Pattern)
	}
	return nil
}

// Match returns the preset of the first rule matching any of names, or "".
func Match(rules []Rule, names []string) string {
	lower := make([]string, 0, len(names))
	for _, n := range names {
		lower = append(lower, strings.ToLower(n))
	}
	for _, r := range rules {
		pattern := strings.ToLower(r.Pattern)
		for _, n := range lower {
			if matches(pattern, n) {
				return r.Preset
			}
		}
	}
	return ""
}

func matches(pattern, name string) bool {
	if ok, _ := doublestar.Match(pattern, name); ok {
		return true
	}
	if base, found := strings.CutSuffix(name, ".exe"); found {
		ok, _ := doublestar.Match(pattern, base)
		return ok
	}
	return false
}

// ///////////////////////////////////////////////
// Detector
// ///////////////////////////////////////////////

// Detector polls the process list against a rule set.
type Detector struct {
	rules []Rule
	list  func() ([]string, error)
	log   *slog.Logger
	// busy is set while a check runs; a tick that finds it set is skipped.
	busy atomic.Bool
	// current is the last reported preset; guarded by busy.
	current string
}

// NewDetector creates a detector. A nil list uses [Processes].
func NewDetector(rules []Rule, list func() ([]string, error), log *slog.Logger) *Detector {
	if list == nil {
		list = Processes
	}
	return &Detector{rules: rules, list: list, log: logger.Component(log, "autodetect")}
}

// Poll runs one check. ran is false when a previous check has not returned.
func (d *Detector) Poll() (preset string, ran bool, err error) {
	if !d.busy.CompareAndSwap(false, true) {
		return "", false, nil
	}
	defer d.busy.Store(false)
	preset, err = d.match()
	return preset, true, err
}

func (d *Detector) match() (string, error) {
	names, err := d.list()
	if err != nil {
		return "", fmt.Errorf("list processes: %w", err)
	}
	return Match(d.rules, names), nil
}

// Run polls every interval until ctx is cancelled and calls onChange when
// the matched preset changes, including once for the first match. Listing
// errors are logged and the previous result is kept. A platform without a
// process listing ends Run immediately.
func (d *Detector) Run(ctx context.Context, interval time.Duration, onChange func(preset string)) error {
	if len(d.rules) == 0 {
		return nil
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	if _, err := d.list(); errors.Is(err, ErrUnsupported) {
		d.log.Info("auto-detect disabled", "error", err)
		return nil
	}
	d.check(onChange)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// A slow listing must not block cancellation; the busy flag
			// drops ticks that overlap it.
			go d.check(onChange)
		}
	}
}

// check runs one guarded check and reports a changed match.
func (d *Detector) check(onChange func(string)) {
	if !d.busy.CompareAndSwap(false, true) {
		logger.Trace(d.log, "previous check still running, skipping tick")
		return
	}
	defer d.busy.Store(false)

	preset, err := d.match()
	if err != nil {
		d.log.Warn("auto-detect check failed", "error", err)
		return
	}
	if preset != d.current {
		d.current = preset
		onChange(preset)
	}
}
