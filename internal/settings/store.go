package settings

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"tools.zach/dev/statuscord/internal/atomicfile"
	"tools.zach/dev/statuscord/internal/migrate"
)

// Domain names a settings section exchanged with plugins as
// "<domain>_config".
const (
	DomainAFK      = "afk"
	DomainSpotify  = "spotify"
	DomainPresence = "presence"
)

// ErrUnknownDomain is returned for a section name the store does not hold.
var ErrUnknownDomain = errors.New("unknown settings domain")

// CorruptSuffix is appended to the path of a settings file that failed to
// parse before it is replaced by defaults.
const CorruptSuffix = ".corrupt"

// Store is the in-memory copy of settings.json. It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	data Data
	// sum is the digest of the bytes last read or written, so a file event
	// caused by our own write is not treated as an external edit.
	sum [32]byte
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Open loads the store at path. A missing file yields defaults; a corrupt
// file is copied to path+CorruptSuffix and defaults are used.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: Defaults()}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	d, migrated, err := decode(raw)
	if err != nil {
		slog.Warn("settings file is corrupt, using defaults", "path", path, "error", err)
		if bErr := atomicfile.Backup(path, CorruptSuffix); bErr != nil {
			slog.Warn("failed to back up corrupt settings", "error", bErr)
		}
		return s, s.Save()
	}
	s.data = d
	s.sum = sha256.Sum256(raw)

	if migrated {
		if bErr := atomicfile.Backup(path, ".bak"); bErr != nil {
			slog.Warn("failed to write settings backup", "error", bErr)
		}
		if err := s.Save(); err != nil {
			slog.Warn("failed to save migrated settings", "error", err)
		}
	}
	return s, nil
}

// decode migrates raw to the current version and decodes it over defaults.
func decode(raw []byte) (Data, bool, error) {
	version, err := migrate.PeekJSONVersion(raw)
	if err != nil {
		return Data{}, false, err
	}
	if version > migrate.Settings.CurrentVersion {
		slog.Warn("settings written by a newer version; unknown fields are ignored",
			"file_version", version, "current_version", migrate.Settings.CurrentVersion)
	}

	migrated := false
	if version < migrate.Settings.CurrentVersion && migrate.Settings.NeedsMigration(version) {
		raw, _, err = migrate.Settings.Run(raw, version)
		if err != nil {
			return Data{}, false, fmt.Errorf("migrate settings: %w", err)
		}
		migrated = true
	}

	d := Defaults()
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}, false, fmt.Errorf("parse settings: %w", err)
	}
	Normalize(&d)
	return d, migrated, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Save writes the current data atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	b = append(b, '\n')
	if err := atomicfile.Write(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	s.sum = sha256.Sum256(b)
	return nil
}

// Reload re-reads the file after an external edit. It reports false when the
// content matches what the store last read or wrote. A file that fails to
// parse leaves the in-memory data untouched.
func (s *Store) Reload() (bool, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("read settings: %w", err)
	}
	sum := sha256.Sum256(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if sum == s.sum {
		return false, nil
	}
	d, _, err := decode(raw)
	if err != nil {
		return false, err
	}
	s.data = d
	s.sum = sum
	return true, nil
}

// ///////////////////////////////////////////////
// Access
// ///////////////////////////////////////////////

// Snapshot returns a deep copy of the current data.
func (s *Store) Snapshot() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.data)
}

// Update applies fn to a copy of the data, normalizes and persists it. The
// in-memory data is only replaced if the write succeeds.
func (s *Store) Update(fn func(*Data)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := clone(s.data)
	fn(&next)
	Normalize(&next)

	prev := s.data
	s.data = next
	if err := s.saveLocked(); err != nil {
		s.data = prev
		return err
	}
	return nil
}

// Section returns the JSON of one domain section.
func (s *Store) Section(domain string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, err := section(&s.data, domain)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sec)
}

// Merge decodes patch onto a copy of the domain section, normalizes,
// persists, and returns the fresh section. Fields absent from patch keep
// their current values; lists present in patch replace the stored list.
func (s *Store) Merge(domain string, patch json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(patch)) == 0 || bytes.Equal(bytes.TrimSpace(patch), []byte("null")) {
		return s.Section(domain)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := clone(s.data)
	sec, err := section(&next, domain)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(patch, sec); err != nil {
		return nil, fmt.Errorf("merge %s settings: %w", domain, err)
	}
	Normalize(&next)

	prev := s.data
	s.data = next
	if err := s.saveLocked(); err != nil {
		s.data = prev
		return nil, err
	}
	fresh, _ := section(&s.data, domain)
	return json.Marshal(fresh)
}

// section returns a pointer to the struct backing domain.
func section(d *Data, domain string) (any, error) {
	switch domain {
	case DomainAFK:
		return &d.AFK, nil
	case DomainSpotify:
		return &d.Spotify, nil
	case DomainPresence:
		return &d.Presence, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
}

// clone deep-copies d through its JSON form so decoding a patch into the
// copy cannot touch slices or maps shared with the original.
func clone(d Data) Data {
	b, err := json.Marshal(d)
	if err != nil {
		panic(fmt.Sprintf("settings: clone: %v", err))
	}
	var out Data
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("settings: clone: %v", err))
	}
	return out
}
