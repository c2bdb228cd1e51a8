// Package tiers evaluates AFK tiers: named away statuses that activate once
// the user has been idle for at least a configured number of minutes.
//
// Tier lists are kept sorted ascending by Minutes. [FindActive] performs a
// linear scan and keeps the last qualifying index, so higher thresholds
// override lower ones once crossed. When two tiers share a threshold the later
// list entry wins; [Duplicates] reports such thresholds so callers can warn.
package tiers

import (
	"log/slog"
	"slices"
	"strings"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Tier is a single away status and the idle threshold that activates it.
type Tier struct {
	// Minutes is the idle threshold, inclusive.
	Minutes int `json:"minutes" toml:"minutes"`
	// Status is the custom status text shown while the tier is active.
	Status string `json:"status" toml:"status"`
}

// Defaults returns the tier list used when the user has not configured one.
func Defaults() []Tier {
	return []Tier{
		{Minutes: 5, Status: "Away"},
		{Minutes: 15, Status: "Deep Away"},
		{Minutes: 60, Status: "Gone for a while"},
	}
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Sort returns a copy of ts stable-sorted ascending by Minutes.
func Sort(ts []Tier) []Tier {
	out := slices.Clone(ts)
	slices.SortStableFunc(out, func(a, b Tier) int { return a.Minutes - b.Minutes })
	return out
}

// FindActive returns the index of the highest tier whose threshold is at or
// below idleMinutes, or -1 when none qualifies. ts must be sorted.
func FindActive(idleMinutes float64, ts []Tier) int {
	idx := -1
	for i, t := range ts {
		if float64(t.Minutes) <= idleMinutes {
			idx = i
		}
	}
	return idx
}

// Normalize drops tiers with a threshold below one minute, trims status text
// and returns the result sorted. Duplicated thresholds are kept.
func Normalize(ts []Tier) []Tier {
	out := make([]Tier, 0, len(ts))
	for _, t := range ts {
		if t.Minutes < 1 {
			slog.Warn("dropping afk tier with invalid threshold", "minutes", t.Minutes, "status", t.Status)
			continue
		}
		t.Status = strings.TrimSpace(t.Status)
		out = append(out, t)
	}
	return Sort(out)
}

// Duplicates returns every threshold used by more than one tier, ascending.
func Duplicates(ts []Tier) []int {
	seen := make(map[int]int, len(ts))
	for _, t := range ts {
		seen[t.Minutes]++
	}
	var dups []int
	for m, n := range seen {
		if n > 1 {
			dups = append(dups, m)
		}
	}
	slices.Sort(dups)
	return dups
}

// Equal reports whether a and b hold the same tiers in the same order.
func Equal(a, b []Tier) bool {
	return slices.Equal(a, b)
}
