// Package priority decides which signal owns the outbound Rich Presence
// activity.
//
// Ranked signals (auto-detect, manual preset, default) compete by a static
// table where the lower rank wins. AFK and Spotify are not ranked: an active
// AFK signal overlays its status text onto the winner unless the winner's
// preset vetoes it, and a playing Spotify signal drives the playback widget
// independently of the winner.
package priority

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// ///////////////////////////////////////////////
// Kinds
// ///////////////////////////////////////////////

// Kind identifies a signal slot. The declaration order breaks rank ties.
type Kind int

const (
	AutoDetect Kind = iota
	ManualPreset
	AFK
	Spotify
	Default
)

var kindNames = map[Kind]string{
	AutoDetect:   "auto_detect",
	ManualPreset: "manual_preset",
	AFK:          "afk",
	Spotify:      "spotify",
	Default:      "default",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a table key ("auto_detect", "manual_preset", "default")
// to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown signal kind %q", s)
}

// Ranked reports whether k competes by rank.
func (k Kind) Ranked() bool {
	return k == AutoDetect || k == ManualPreset || k == Default
}

// ///////////////////////////////////////////////
// Payload
// ///////////////////////////////////////////////

// Button is a Rich Presence link button.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Payload is the activity content a signal carries.
type Payload struct {
	Details        string   `json:"details,omitempty"`
	State          string   `json:"state,omitempty"`
	LargeImage     string   `json:"largeImage,omitempty"`
	LargeText      string   `json:"largeText,omitempty"`
	SmallImage     string   `json:"smallImage,omitempty"`
	SmallText      string   `json:"smallText,omitempty"`
	Buttons        []Button `json:"buttons,omitempty"`
	StartTimestamp int64    `json:"startTimestamp,omitempty"`
}

// IsZero reports whether p carries no content.
func (p Payload) IsZero() bool {
	return p.Details == "" && p.State == "" && p.LargeImage == "" &&
		p.LargeText == "" && p.SmallImage == "" && p.SmallText == "" &&
		len(p.Buttons) == 0 && p.StartTimestamp == 0
}

// Hash returns a stable digest used to skip re-publishing identical content.
func (p Payload) Hash() string {
	b, _ := json.Marshal(p)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// ///////////////////////////////////////////////
// Signals
// ///////////////////////////////////////////////

// Signal is the content of one slot.
type Signal struct {
	Kind    Kind
	Active  bool
	Preset  string // originating preset name, if any
	Payload Payload
	// Status is the AFK overlay text.
	Status string
	// Playing is set on a Spotify signal while a track plays.
	Playing bool
}

// Table maps ranked kinds to their rank. Lower wins.
type Table map[Kind]int

// DefaultTable returns AutoDetect(1) > ManualPreset(2) > Default(3).
func DefaultTable() Table {
	return Table{AutoDetect: 1, ManualPreset: 2, Default: 3}
}

// Validate rejects non-positive or duplicated ranks and entries for
// unranked kinds.
func (t Table) Validate() error {
	seen := make(map[int]Kind, len(t))
	for _, k := range t.kinds() {
		rank := t[k]
		if !k.Ranked() {
			return fmt.Errorf("priority table: %s is an override, not a rank", k)
		}
		if rank <= 0 {
			return fmt.Errorf("priority table: %s rank must be positive, got %d", k, rank)
		}
		if other, dup := seen[rank]; dup {
			return fmt.Errorf("priority table: %s and %s share rank %d", other, k, rank)
		}
		seen[rank] = k
	}
	return nil
}

func (t Table) kinds() []Kind {
	ks := make([]Kind, 0, len(t))
	for k := range t {
		ks = append(ks, k)
	}
	slices.Sort(ks)
	return ks
}

// ///////////////////////////////////////////////
// Resolve
// ///////////////////////////////////////////////

// Resolution is the outcome of [Resolve].
type Resolution struct {
	// Winner is the ranked signal that owns the activity.
	Winner Signal
	// Payload is the winner's payload with any AFK overlay applied.
	Payload Payload
	// AFKOverlay reports whether the AFK status replaced Payload.State.
	AFKOverlay bool
	// Playback is the playing Spotify signal, if any.
	Playback *Signal
}

// Resolve picks the active ranked signal with the smallest rank, falling back
// to the Default slot when none is active, then applies the AFK overlay unless the winner's preset
// is listed in afkDisabled. Ranked kinds missing from table never win.
func Resolve(signals map[Kind]Signal, table Table, afkDisabled []string) Resolution {
	var (
		winner Signal
		found  bool
		best   int
	)
	for _, k := range table.kinds() {
		if !k.Ranked() {
			continue
		}
		s, ok := signals[k]
		if !ok || !s.Active {
			continue
		}
		// Kinds are visited in declaration order, so a strict < keeps the
		// earlier kind on equal ranks.
		if rank := table[k]; !found || rank < best {
			winner, best, found = s, rank, true
		}
	}
	if !found {
		winner = signals[Default]
		winner.Kind = Default
	}

	res := Resolution{Winner: winner, Payload: winner.Payload}
	if afk, ok := signals[AFK]; ok && afk.Active && afk.Status != "" &&
		!slices.Contains(afkDisabled, winner.Preset) {
		res.Payload = Overlay(res.Payload, afk.Status)
		res.AFKOverlay = true
	}
	if sp, ok := signals[Spotify]; ok && sp.Active && sp.Playing {
		res.Playback = &sp
	}
	return res
}

// Overlay replaces the visible status line of p with status. Title, images
// and buttons are untouched; applying it twice equals applying it once.
func Overlay(p Payload, status string) Payload {
	p.Buttons = slices.Clone(p.Buttons)
	p.State = status
	return p
}
