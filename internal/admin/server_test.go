package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/esp-sensor-hub/bridge/internal/frame"
	"github.com/esp-sensor-hub/bridge/internal/publish"
	"github.com/esp-sensor-hub/bridge/internal/queue"
	"github.com/esp-sensor-hub/bridge/internal/radio"
	"github.com/esp-sensor-hub/bridge/internal/radio/stubdriver"
	"github.com/esp-sensor-hub/bridge/internal/registry"
)

const testDevice frame.DeviceID = 0xAABBCCDDEEFF0011

type fakeBrokerState struct{ up bool }

func (f fakeBrokerState) Connected() bool { return f.up }

type fakeEvents struct{ events []publish.EventMessage }

func (f fakeEvents) RecentEvents() []publish.EventMessage { return f.events }

// alwaysBusyDriver keeps command transmissions failing so submitted
// commands remain visible in the pending list.
type alwaysBusyDriver struct {
	*stubdriver.Driver
}

func (d *alwaysBusyDriver) BusyLine() bool { return true }

func newTestServer(t *testing.T) (*Server, *registry.Registry, *queue.CommandQueue) {
	t.Helper()
	arb, err := radio.NewArbiter(&alwaysBusyDriver{Driver: stubdriver.New()})
	if err != nil {
		t.Fatalf("NewArbiter() error = %v", err)
	}
	reg := registry.New(0, 0, nil)
	commands := queue.New(0, 0)
	decoded := queue.NewDecodedQueue(16)
	s := NewServer(reg, commands, decoded, arb, fakeBrokerState{up: true}, fakeEvents{
		events: []publish.EventMessage{{DeviceID: "AABBCCDDEEFF0011", Severity: "warning", Message: "low battery"}},
	})
	return s, reg, commands
}

func TestDevicesListsRegistrySnapshot(t *testing.T) {
	s, reg, _ := newTestServer(t)
	reg.Observe(testDevice, 7, -85, 9)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var devices []deviceJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("devices = %+v, want 1", devices)
	}
	d := devices[0]
	if d.ID != "AABBCCDDEEFF0011" || d.Name != "sensor_eeff0011" || d.PacketCount != 1 || d.RSSI != -85 {
		t.Errorf("device = %+v", d)
	}
}

func TestHealthReportsCountersAndState(t *testing.T) {
	s, reg, _ := newTestServer(t)
	reg.Observe(testDevice, 1, 0, 0)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var h healthJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !h.BrokerConnected || h.Devices != 1 || h.PendingCommands != 0 {
		t.Errorf("health = %+v", h)
	}
	if h.RadioState == "" {
		t.Error("radio state missing")
	}
}

func TestSubmitCommandQueuesAndListsPending(t *testing.T) {
	s, _, commands := newTestServer(t)

	body := `{"device_id":"AABBCCDDEEFF0011","action":"set_interval","value":90}`
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/commands", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var ack publish.CommandAck
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ack.Status != "queued" {
		t.Errorf("ack = %+v", ack)
	}
	if commands.Len() != 1 {
		t.Fatalf("queue Len() = %d, want 1", commands.Len())
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/commands?device_id=AABBCCDDEEFF0011", nil))
	var pending []pendingJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Params != "90" || pending[0].CommandType != frame.CommandSetInterval {
		t.Errorf("pending = %+v", pending)
	}
}

func TestSubmitCommandRejectsInvalid(t *testing.T) {
	s, _, commands := newTestServer(t)

	rec := httptest.NewRecorder()
	body := `{"device_id":"AABBCCDDEEFF0011","action":"set_interval","value":999999}`
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/commands", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if commands.Len() != 0 {
		t.Error("invalid command was queued")
	}
}

func TestEventsReturnsRecentRing(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	var events []publish.EventMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(events) != 1 || events[0].Severity != "warning" {
		t.Errorf("events = %+v", events)
	}
}

func TestEventsEmptyWithoutSource(t *testing.T) {
	arb, err := radio.NewArbiter(stubdriver.New())
	if err != nil {
		t.Fatalf("NewArbiter() error = %v", err)
	}
	s := NewServer(registry.New(0, 0, nil), queue.New(0, 0), queue.NewDecodedQueue(4), arb, fakeBrokerState{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty JSON list", got)
	}
}
