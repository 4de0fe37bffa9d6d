package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileSourceReadsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relays.json")
	writeConfig(t, path, `{"readRelays":["wss://a.example"],"writeRelays":["wss://b.example"]}`)

	src := NewFileSource(path)
	set := src.Snapshot()
	if len(set.Read) != 1 || set.Read[0] != "wss://a.example" {
		t.Errorf("Read = %v", set.Read)
	}
	if len(set.Write) != 1 || set.Write[0] != "wss://b.example" {
		t.Errorf("Write = %v", set.Write)
	}
}

func TestFileSourceObservesEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relays.json")
	writeConfig(t, path, `{"readRelays":["wss://old.example"]}`)

	src := NewFileSource(path)
	if set := src.Snapshot(); set.Read[0] != "wss://old.example" {
		t.Fatalf("Read = %v", set.Read)
	}

	writeConfig(t, path, `{"readRelays":["wss://new.example"]}`)
	// Push mtime forward explicitly; coarse filesystem clocks could
	// otherwise leave it unchanged.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	if set := src.Snapshot(); set.Read[0] != "wss://new.example" {
		t.Errorf("Read = %v, want the edited config", set.Read)
	}
}

func TestFileSourceMissingFileFallsBackToDefaults(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "nope.json"))
	set := src.Snapshot()
	if len(set.Read) == 0 || len(set.Write) == 0 {
		t.Error("defaults should provide read and write relays")
	}
}

func TestFileSourceKeepsLastGoodConfigOnBadEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relays.json")
	writeConfig(t, path, `{"readRelays":["wss://good.example"]}`)

	src := NewFileSource(path)
	src.Snapshot()

	writeConfig(t, path, `{not json`)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	if set := src.Snapshot(); len(set.Read) != 1 || set.Read[0] != "wss://good.example" {
		t.Errorf("Read = %v, want the last good config retained", set.Read)
	}
}

func TestProfileOrRead(t *testing.T) {
	with := RelaySet{Read: []string{"wss://r"}, Profile: []string{"wss://p"}}
	if got := with.ProfileOrRead(); got[0] != "wss://p" {
		t.Errorf("got %v, want the profile relays", got)
	}
	without := RelaySet{Read: []string{"wss://r"}}
	if got := without.ProfileOrRead(); got[0] != "wss://r" {
		t.Errorf("got %v, want the read fallback", got)
	}
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{Set: RelaySet{Read: []string{"wss://s"}}}
	if got := src.Snapshot(); got.Read[0] != "wss://s" {
		t.Errorf("got %v", got.Read)
	}
}
