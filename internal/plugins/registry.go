// Package plugins tracks the plugin clients known to the daemon and whether
// each one is active or blocked.
//
// Blocking is a soft delete: the entry and its id survive so that unblocking
// restores the same identity. The state is a single enum field, so a name can
// never be both active and blocked.
package plugins

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownPlugin is returned when an operation names a plugin that was
// never registered.
var ErrUnknownPlugin = errors.New("unknown plugin")

// State is the lifecycle state of a plugin entry.
type State string

const (
	Active  State = "active"
	Blocked State = "blocked"
)

// UnmarshalText rejects values other than active and blocked.
func (s *State) UnmarshalText(b []byte) error {
	switch v := State(strings.ToLower(string(b))); v {
	case Active, Blocked:
		*s = v
		return nil
	default:
		return fmt.Errorf("invalid plugin state %q", b)
	}
}

// Entry is a registered plugin.
type Entry struct {
	Name  string `json:"-"`
	ID    string `json:"id"`
	State State  `json:"state"`
}

// Registry maps plugin display names to entries. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register records name as active and returns its entry. An existing entry,
// including a blocked one, is returned unchanged.
func (r *Registry) Register(name string) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		return e
	}
	e := Entry{Name: name, ID: uuid.NewString(), State: Active}
	r.entries[name] = e
	return e
}

// Block moves name to the blocked state, registering it first if needed.
func (r *Registry) Block(name string) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		e = Entry{Name: name, ID: uuid.NewString()}
	}
	e.State = Blocked
	r.entries[name] = e
	return e
}

// Unblock returns name to the active state.
func (r *Registry) Unblock(name string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("unblocking %q: %w", name, ErrUnknownPlugin)
	}
	e.State = Active
	r.entries[name] = e
	return e, nil
}

// IsBlocked reports whether name is registered and blocked.
func (r *Registry) IsBlocked(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name].State == Blocked
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Entries returns all entries sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// ///////////////////////////////////////////////
// Persistence
// ///////////////////////////////////////////////

// Snapshot returns the registry as the map persisted in settings.
func (r *Registry) Snapshot() map[string]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Load replaces the registry contents with m. Entries missing an id get one.
func (r *Registry) Load(m map[string]Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry, len(m))
	for name, e := range m {
		e.Name = name
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.State == "" {
			e.State = Active
		}
		r.entries[name] = e
	}
}
