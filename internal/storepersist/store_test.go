package storepersist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestJSONFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	store := NewJSONFileStore(path)

	want := []Entry{
		{ID: "0000000000000001", Name: "porch", Location: "backyard", LastSeen: time.Now().UTC().Truncate(time.Second), PacketCount: 12, RSSI: -70, SNR: 5, ReadIntervalSeconds: 300, DeepSleepSeconds: 0},
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "porch" || got[0].PacketCount != 12 {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
}

func TestJSONFileStoreLoadMissingFile(t *testing.T) {
	store := NewJSONFileStore(filepath.Join(t.TempDir(), "missing.json"))
	entries, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for a missing file", err)
	}
	if entries != nil {
		t.Fatalf("Load() = %v, want nil", entries)
	}
}

func TestJSONFileStoreLoadMinimalHistoricalShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	minimal := []minimalEntry{{ID: "0000000000000002", Name: "shed", Location: "yard"}}
	data, err := json.Marshal(minimal)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewJSONFileStore(path)
	entries, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "shed" || entries[0].PacketCount != 0 {
		t.Fatalf("Load() = %+v, want minimal entry with zero-valued extra fields", entries)
	}
}

func TestEntryDeviceID(t *testing.T) {
	e := Entry{ID: "00000000000000FF"}
	if e.DeviceID() != 0xFF {
		t.Fatalf("DeviceID() = %x, want 0xFF", e.DeviceID())
	}
}

func TestEntryDeviceIDMalformed(t *testing.T) {
	e := Entry{ID: "not-hex"}
	if e.DeviceID() != 0 {
		t.Fatalf("DeviceID() = %x, want 0 for malformed input", e.DeviceID())
	}
}
