package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/esp-sensor-hub/bridge/internal/config"
	"github.com/esp-sensor-hub/bridge/internal/frame"
	"github.com/esp-sensor-hub/bridge/internal/radio/stubdriver"
)

// recordingBroker is a minimal in-memory broker client for wiring the
// whole bridge end to end.
type recordingBroker struct {
	mu        sync.Mutex
	connected bool
	pubs      map[string][][]byte
	handlers  map[string]func(topic string, payload []byte)
}

func newRecordingBroker() *recordingBroker {
	return &recordingBroker{
		pubs:     make(map[string][][]byte),
		handlers: make(map[string]func(string, []byte)),
	}
}

func (b *recordingBroker) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

func (b *recordingBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *recordingBroker) Publish(topic string, _ bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.pubs[topic] = append(b.pubs[topic], cp)
	return nil
}

func (b *recordingBroker) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *recordingBroker) Disconnect() {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

func (b *recordingBroker) published(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.pubs[topic]...)
}

// TestBridgeEndToEnd drives a frame from the (stub) radio all the way
// to a broker publish through the fully wired bridge. A single test
// builds the bridge once: the metrics collectors register against the
// process-wide default registry.
func TestBridgeEndToEnd(t *testing.T) {
	cfg := &config.Config{}
	cfgApplyDefaults(t, cfg)
	cfg.Registry.PersistencePath = filepath.Join(t.TempDir(), "devices.json")
	cfg.Admin.Listen = "127.0.0.1:0"

	drv := stubdriver.New()
	broker := newRecordingBroker()

	b, err := New(cfg, drv, broker)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	drv.SetLinkQuality(-85, 9)
	drv.InjectReceive(frame.EncodeReadings(0xAABBCCDDEEFF0011, 123, frame.ReadingsPayload{
		TemperatureCentiC: 2531,
		HumidityCenti:     5520,
		PressureCenti:     101325,
		BatteryMilliVolts: 3700,
		BatteryPercent:    85,
		SourceTimestamp:   1234567890,
	}))

	topic := "esp-sensor-hub/AABBCCDDEEFF0011/readings"
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && len(broker.published(topic)) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	msgs := broker.published(topic)
	if len(msgs) == 0 {
		t.Fatal("no readings publish reached the broker")
	}

	var body map[string]any
	if err := json.Unmarshal(msgs[0], &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body["temperature"] != 25.31 || body["battery_voltage"] != 3.7 {
		t.Errorf("published body = %v", body)
	}
	if name, _ := body["name"].(string); !strings.HasPrefix(name, "sensor_") {
		t.Errorf("name = %v, want low-32-bit default", body["name"])
	}

	// The registry now holds the auto-discovered device.
	if reg := b.Registry(); len(reg.Snapshot()) != 1 {
		t.Errorf("registry has %d devices, want 1", len(reg.Snapshot()))
	}
}

// cfgApplyDefaults fills a zero config the way Load would.
func cfgApplyDefaults(t *testing.T, c *config.Config) {
	t.Helper()
	raw := `
broker:
  host: broker.local
  port: 1883
`
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	*c = *loaded
}
