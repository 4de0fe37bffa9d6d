// Package config supplies the relay set the engine talks to. The set can
// change at any time; callers take a Snapshot per operation instead of
// holding a cached copy.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// RelaySet is one observed relay configuration, split by role.
type RelaySet struct {
	Read    []string `json:"readRelays"`
	Write   []string `json:"writeRelays"`
	Profile []string `json:"profileRelays"`
	Search  []string `json:"searchRelays"`
}

// ProfileOrRead returns the profile-role relays, falling back to read
// relays when no dedicated profile relays are configured.
func (rs RelaySet) ProfileOrRead() []string {
	if len(rs.Profile) > 0 {
		return rs.Profile
	}
	return rs.Read
}

// Source yields the current relay configuration. Implementations must
// return fresh data on every Snapshot call; the engine never caches it.
type Source interface {
	Snapshot() RelaySet
}

// StaticSource wraps a fixed relay set, used by tests and embedders that
// manage configuration themselves.
type StaticSource struct {
	Set RelaySet
}

func (s StaticSource) Snapshot() RelaySet {
	return s.Set
}

// FileSource re-reads a JSON config file on every Snapshot. A cheap mtime
// check skips re-parsing when the file has not changed, but a changed file
// is always observed on the next call.
type FileSource struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	current RelaySet
	loaded  bool
}

// NewFileSource builds a source for the given path. An empty path uses
// RELAYS_CONFIG or the default config/relays.json.
func NewFileSource(path string) *FileSource {
	if path == "" {
		path = os.Getenv("RELAYS_CONFIG")
	}
	if path == "" {
		path = "config/relays.json"
	}
	return &FileSource{path: path}
}

func (f *FileSource) Snapshot() RelaySet {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		if !f.loaded {
			f.current = defaultRelaySet()
			f.loaded = true
			if os.IsNotExist(err) {
				slog.Debug("relays config not found, using defaults", "path", f.path)
			} else {
				slog.Warn("could not stat relays config, using defaults", "path", f.path, "error", err)
			}
		}
		return f.current
	}

	if f.loaded && info.ModTime().Equal(f.modTime) {
		return f.current
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		slog.Warn("could not read relays config", "path", f.path, "error", err)
		if !f.loaded {
			f.current = defaultRelaySet()
			f.loaded = true
		}
		return f.current
	}

	var set RelaySet
	if err := json.Unmarshal(data, &set); err != nil {
		slog.Error("invalid JSON in relays config", "path", f.path, "error", err)
		if !f.loaded {
			f.current = defaultRelaySet()
			f.loaded = true
		}
		return f.current
	}

	f.current = set
	f.modTime = info.ModTime()
	f.loaded = true
	slog.Info("loaded relays configuration",
		"path", f.path,
		"read", len(set.Read),
		"write", len(set.Write),
		"profile", len(set.Profile),
		"search", len(set.Search))
	return f.current
}

func defaultRelaySet() RelaySet {
	return RelaySet{
		Read: []string{
			"wss://relay.damus.io",
			"wss://relay.nostr.band",
			"wss://relay.primal.net",
			"wss://nos.lol",
			"wss://nostr.mom",
		},
		Write: []string{
			"wss://relay.damus.io",
			"wss://nos.lol",
		},
		Profile: []string{
			"wss://purplepag.es",
			"wss://relay.nostr.band",
		},
		Search: []string{
			"wss://relay.nostr.band",
		},
	}
}
