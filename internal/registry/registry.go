// Package registry implements the device registry: the single shared
// mutable structure in the bridge, mapping a device's 64-bit identity to
// its mutable state behind one lock, with a consistent copy-based
// snapshot for external consumers.
package registry

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/esp-sensor-hub/bridge/internal/frame"
	"github.com/esp-sensor-hub/bridge/internal/storepersist"
)

// SensorKind classifies what a device's onboard sensor reports.
type SensorKind string

const (
	SensorEnvironmentalMulti  SensorKind = "environmental-multi"
	SensorTemperatureOnly     SensorKind = "temperature-only"
	SensorHumidityTemperature SensorKind = "humidity-temperature"
	SensorUnknown             SensorKind = "unknown"
)

// ErrCapacityFull is returned by Ensure when the registry is already at
// its configured device capacity.
var ErrCapacityFull = fmt.Errorf("registry: at capacity")

// DefaultCapacity is the default bound on known devices.
const DefaultCapacity = 10

// record is one device's mutable state, guarded by the owning Registry's
// lock -- it is never handed out directly, only copied into a Snapshot.
type record struct {
	id                  frame.DeviceID
	name                string
	location            string
	sensorKind          SensorKind
	lastSeen            time.Time
	lastRSSI            int8
	lastSNR             int8
	packetCount         uint64
	lastSeq             uint16
	dedup               *DedupRing
	readIntervalSeconds uint16
	deepSleepSeconds    uint16
}

// Snapshot is a read-only, copy-based view of one device record, safe to
// hand to callers outside the registry's lock.
type Snapshot struct {
	ID                  frame.DeviceID
	Name                string
	Location            string
	SensorKind          SensorKind
	LastSeen            time.Time
	LastRSSI            int8
	LastSNR             int8
	PacketCount         uint64
	LastSeq             uint16
	ReadIntervalSeconds uint16
	DeepSleepSeconds    uint16
}

// Registry maps device identity to mutable state behind a single mutex.
// Critical sections are short; nothing blocks while the lock is held.
type Registry struct {
	mu       sync.Mutex
	capacity int
	ringSize int
	records  map[frame.DeviceID]*record
	store    storepersist.Store
}

// New builds an empty registry bounded at capacity, with a per-device
// dedup ring of ringSize slots. Zero values take the defaults. A nil
// store disables persistence entirely.
func New(capacity, ringSize int, store storepersist.Store) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	return &Registry{
		capacity: capacity,
		ringSize: ringSize,
		records:  make(map[frame.DeviceID]*record),
		store:    store,
	}
}

// LoadFrom seeds the registry from previously persisted entries. Intended
// to run once at startup, before any receive/publish traffic begins.
func (r *Registry) LoadFrom(entries []storepersist.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		if len(r.records) >= r.capacity {
			log.Printf("registry: capacity reached while restoring persisted device %s, skipping", e.ID)
			continue
		}
		id := e.DeviceID()
		rec := newRecord(id, r.ringSize)
		rec.name = e.Name
		rec.location = e.Location
		rec.lastSeen = e.LastSeen
		rec.packetCount = e.PacketCount
		rec.lastRSSI = e.RSSI
		rec.lastSNR = e.SNR
		rec.readIntervalSeconds = e.ReadIntervalSeconds
		rec.deepSleepSeconds = e.DeepSleepSeconds
		r.records[id] = rec
	}
}

func newRecord(id frame.DeviceID, ringSize int) *record {
	return &record{
		id:         id,
		name:       defaultName(id),
		location:   "unknown",
		sensorKind: SensorUnknown,
		dedup:      NewDedupRing(ringSize),
	}
}

func defaultName(id frame.DeviceID) string {
	return fmt.Sprintf("sensor_%08x", uint32(id))
}

// Ensure creates a record with defaults if absent. It returns
// ErrCapacityFull if the registry is full and id is unknown.
func (r *Registry) Ensure(id frame.DeviceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.ensureLocked(id)
	return err
}

func (r *Registry) ensureLocked(id frame.DeviceID) (*record, error) {
	if rec, ok := r.records[id]; ok {
		return rec, nil
	}
	if len(r.records) >= r.capacity {
		log.Printf("registry: capacity %d reached, refusing new device %016x", r.capacity, uint64(id))
		return nil, ErrCapacityFull
	}
	rec := newRecord(id, r.ringSize)
	r.records[id] = rec
	return rec, nil
}

// Observe updates last-seen/link metrics, increments the packet count,
// and writes seq into the device's dedup ring. It auto-creates the
// device record if it does not already exist.
func (r *Registry) Observe(id frame.DeviceID, seq uint16, rssi, snr int8) {
	r.mu.Lock()
	rec, err := r.ensureLocked(id)
	if err != nil {
		r.mu.Unlock()
		return
	}
	rec.lastSeen = time.Now()
	rec.lastRSSI = rssi
	rec.lastSNR = snr
	rec.packetCount++
	rec.lastSeq = seq
	rec.dedup.Observe(seq)
	r.mu.Unlock()

	r.persist()
}

// IsDuplicate scans the device's dedup ring for an exact match. Unknown
// devices are never duplicates.
func (r *Registry) IsDuplicate(id frame.DeviceID, seq uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	return rec.dedup.Contains(seq)
}

// ClearDedup resets the device's dedup ring, as happens when a STARTUP
// event is observed. No-op for unknown devices.
func (r *Registry) ClearDedup(id frame.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.dedup.Reset()
	}
}

// SetName updates the friendly name, no-op if unchanged, and schedules
// persistence otherwise.
func (r *Registry) SetName(id frame.DeviceID, name string) {
	r.mu.Lock()
	rec, err := r.ensureLocked(id)
	if err != nil {
		r.mu.Unlock()
		return
	}
	if rec.name == name {
		r.mu.Unlock()
		return
	}
	rec.name = name
	r.mu.Unlock()
	r.persist()
}

// SetLocation updates the location string, no-op if unchanged.
func (r *Registry) SetLocation(id frame.DeviceID, loc string) {
	r.mu.Lock()
	rec, err := r.ensureLocked(id)
	if err != nil {
		r.mu.Unlock()
		return
	}
	if rec.location == loc {
		r.mu.Unlock()
		return
	}
	rec.location = loc
	r.mu.Unlock()
	r.persist()
}

// SetSensorKind updates the device's reported sensor kind, no-op if
// unchanged.
func (r *Registry) SetSensorKind(id frame.DeviceID, kind SensorKind) {
	r.mu.Lock()
	rec, err := r.ensureLocked(id)
	if err != nil {
		r.mu.Unlock()
		return
	}
	if rec.sensorKind == kind {
		r.mu.Unlock()
		return
	}
	rec.sensorKind = kind
	r.mu.Unlock()
	r.persist()
}

// SetConfig records the device's last reported read-interval and
// deep-sleep configuration, no-op if both are unchanged.
func (r *Registry) SetConfig(id frame.DeviceID, readIntervalSeconds, deepSleepSeconds uint16) {
	r.mu.Lock()
	rec, err := r.ensureLocked(id)
	if err != nil {
		r.mu.Unlock()
		return
	}
	if rec.readIntervalSeconds == readIntervalSeconds && rec.deepSleepSeconds == deepSleepSeconds {
		r.mu.Unlock()
		return
	}
	rec.readIntervalSeconds = readIntervalSeconds
	rec.deepSleepSeconds = deepSleepSeconds
	r.mu.Unlock()
	r.persist()
}

// LookupName returns the device's friendly name, auto-creating a default
// record if the device is unknown so the translator can always emit one.
func (r *Registry) LookupName(id frame.DeviceID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.ensureLocked(id)
	if err != nil {
		return defaultName(id)
	}
	return rec.name
}

// LookupLocation returns the device's location, auto-creating a default
// record if the device is unknown.
func (r *Registry) LookupLocation(id frame.DeviceID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.ensureLocked(id)
	if err != nil {
		return "unknown"
	}
	return rec.location
}

// Snapshot returns a consistent, copy-based view of every known device.
// The output slice is built while still holding the lock, so no partial
// per-record state is ever observable.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, Snapshot{
			ID:                  rec.id,
			Name:                rec.name,
			Location:            rec.location,
			SensorKind:          rec.sensorKind,
			LastSeen:            rec.lastSeen,
			LastRSSI:            rec.lastRSSI,
			LastSNR:             rec.lastSNR,
			PacketCount:         rec.packetCount,
			LastSeq:             rec.lastSeq,
			ReadIntervalSeconds: rec.readIntervalSeconds,
			DeepSleepSeconds:    rec.deepSleepSeconds,
		})
	}
	return out
}

// persist schedules a best-effort, fire-and-forget save of the current
// registry contents. Failures are logged, never propagated -- the
// registry's in-memory state stays authoritative. Callers must not hold
// r.mu when calling this.
func (r *Registry) persist() {
	if r.store == nil {
		return
	}
	entries := r.entries()
	go func() {
		if err := r.store.Save(entries); err != nil {
			log.Printf("registry: persist failed: %v", err)
		}
	}()
}

// entries snapshots the registry into the persistence document shape.
func (r *Registry) entries() []storepersist.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]storepersist.Entry, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, storepersist.Entry{
			ID:                  fmt.Sprintf("%016X", uint64(rec.id)),
			Name:                rec.name,
			Location:            rec.location,
			LastSeen:            rec.lastSeen,
			PacketCount:         rec.packetCount,
			RSSI:                rec.lastRSSI,
			SNR:                 rec.lastSNR,
			ReadIntervalSeconds: rec.readIntervalSeconds,
			DeepSleepSeconds:    rec.deepSleepSeconds,
		})
	}
	return out
}
