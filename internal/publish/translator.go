// Package publish implements the broker-facing side of the bridge: it
// drains the decoded-record queue, translates binary frames into JSON
// broker messages, accepts JSON commands back off the broker, and
// drives the opportunistic command retransmission loop.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/esp-sensor-hub/bridge/internal/frame"
	"github.com/esp-sensor-hub/bridge/internal/queue"
	"github.com/esp-sensor-hub/bridge/internal/registry"
)

// Command ingress validation failures.
var (
	ErrBadDeviceID     = errors.New("publish: malformed device_id")
	ErrUnknownAction   = errors.New("publish: unknown action")
	ErrValueRequired   = errors.New("publish: action requires a value")
	ErrValueNotInt     = errors.New("publish: value must be an integer")
	ErrValueOutOfRange = errors.New("publish: value out of range")
)

// ReadingsMessage is the flat JSON document published per sensor
// reading. Centi-encoded integers arrive scaled to physical units.
type ReadingsMessage struct {
	DeviceID       string  `json:"device_id"`
	Name           string  `json:"name"`
	Location       string  `json:"location"`
	Sequence       uint16  `json:"sequence"`
	Temperature    float64 `json:"temperature"`
	Humidity       float64 `json:"humidity"`
	Pressure       float64 `json:"pressure"`
	Altitude       int16   `json:"altitude"`
	BatteryVoltage float64 `json:"battery_voltage"`
	BatteryPercent uint8   `json:"battery_percent"`
	PressureChange float64 `json:"pressure_change"`
	PressureTrend  string  `json:"pressure_trend"`
	RSSI           int8    `json:"rssi"`
	SNR            int8    `json:"snr"`
	Timestamp      uint32  `json:"timestamp"`
	ReceivedAt     int64   `json:"received_at"`
}

// StatusMessage is the flat JSON document published per device status
// report.
type StatusMessage struct {
	DeviceID            string `json:"device_id"`
	Name                string `json:"name"`
	Location            string `json:"location"`
	Sequence            uint16 `json:"sequence"`
	UptimeSeconds       uint32 `json:"uptime_seconds"`
	WakeCount           uint32 `json:"wake_count"`
	SensorHealthy       bool   `json:"sensor_healthy"`
	FreeHeapBytes       uint32 `json:"free_heap_bytes"`
	SensorFailures      uint16 `json:"sensor_failures"`
	TXFailures          uint16 `json:"tx_failures"`
	LastSuccessTX       uint32 `json:"last_success_tx"`
	ReadIntervalSeconds uint16 `json:"read_interval_seconds"`
	DeepSleepSeconds    uint16 `json:"deep_sleep_seconds"`
	RSSI                int8   `json:"rssi"`
	SNR                 int8   `json:"snr"`
	ReceivedAt          int64  `json:"received_at"`
}

// EventMessage is the flat JSON document published per device event,
// severity rendered as its symbolic name.
type EventMessage struct {
	DeviceID   string `json:"device_id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	Sequence   uint16 `json:"sequence"`
	EventType  uint8  `json:"event_type"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	RSSI       int8   `json:"rssi"`
	SNR        int8   `json:"snr"`
	ReceivedAt int64  `json:"received_at"`
}

// CommandRequest is the inbound JSON command schema on the command
// topic.
type CommandRequest struct {
	DeviceID string   `json:"device_id"`
	Action   string   `json:"action"`
	Value    *float64 `json:"value,omitempty"`
}

// CommandAck is published on the ack topic after a command is queued.
type CommandAck struct {
	DeviceID string `json:"device_id"`
	Action   string `json:"action"`
	Status   string `json:"status"`
}

// Translator converts between binary radio payloads and broker JSON in
// both directions. It owns no I/O; the Path decides where results go.
type Translator struct {
	reg    *registry.Registry
	prefix string
}

// NewTranslator returns a translator publishing under prefix (trailing
// slash tolerated).
func NewTranslator(reg *registry.Registry, prefix string) *Translator {
	return &Translator{reg: reg, prefix: strings.TrimSuffix(prefix, "/")}
}

// HexID renders a device identity the way every external interface
// carries it: 16 uppercase hex characters.
func HexID(id frame.DeviceID) string {
	return fmt.Sprintf("%016X", uint64(id))
}

func (t *Translator) topic(id frame.DeviceID, suffix string) string {
	return t.prefix + "/" + HexID(id) + "/" + suffix
}

// Readings translates a READINGS record: classifies the device's sensor
// kind from the payload, updates the registry, and builds the broker
// message with unit scaling applied.
func (t *Translator) Readings(rec *queue.DecodedRecord) (string, *ReadingsMessage) {
	p := frame.DecodeReadings(&frame.Frame{Header: rec.Header, Payload: rec.Payload})
	id := rec.Header.DeviceID

	kind := registry.SensorTemperatureOnly
	switch {
	case p.PressureCenti != 0:
		kind = registry.SensorEnvironmentalMulti
	case p.HumidityCenti != 0:
		kind = registry.SensorHumidityTemperature
	}
	t.reg.SetSensorKind(id, kind)

	msg := &ReadingsMessage{
		DeviceID:       HexID(id),
		Name:           t.reg.LookupName(id),
		Location:       t.reg.LookupLocation(id),
		Sequence:       rec.Header.Seq,
		Temperature:    float64(p.TemperatureCentiC) / 100,
		Humidity:       float64(p.HumidityCenti) / 100,
		Pressure:       float64(p.PressureCenti) / 100,
		Altitude:       p.AltitudeMeters,
		BatteryVoltage: float64(p.BatteryMilliVolts) / 1000,
		BatteryPercent: p.BatteryPercent,
		PressureChange: float64(p.PressureChange) / 100,
		PressureTrend:  trendName(p.PressureTrend),
		RSSI:           rec.RSSI,
		SNR:            rec.SNR,
		Timestamp:      p.SourceTimestamp,
		ReceivedAt:     rec.ReceivedAt.Unix(),
	}
	return t.topic(id, "readings"), msg
}

// Status translates a STATUS record, folding the device's self-reported
// name, location, and configuration back into the registry.
func (t *Translator) Status(rec *queue.DecodedRecord) (string, *StatusMessage) {
	p := frame.DecodeStatus(&frame.Frame{Header: rec.Header, Payload: rec.Payload})
	id := rec.Header.DeviceID

	if p.Name != "" {
		t.reg.SetName(id, p.Name)
	}
	if p.Location != "" {
		t.reg.SetLocation(id, p.Location)
	}
	t.reg.SetConfig(id, p.ReadIntervalSeconds, p.DeepSleepSeconds)

	msg := &StatusMessage{
		DeviceID:            HexID(id),
		Name:                t.reg.LookupName(id),
		Location:            t.reg.LookupLocation(id),
		Sequence:            rec.Header.Seq,
		UptimeSeconds:       p.UptimeSeconds,
		WakeCount:           p.WakeCount,
		SensorHealthy:       p.SensorHealthy,
		FreeHeapBytes:       p.FreeHeapBytes,
		SensorFailures:      p.SensorFailureCount,
		TXFailures:          p.TXFailureCount,
		LastSuccessTX:       p.LastSuccessTXTimestamp,
		ReadIntervalSeconds: p.ReadIntervalSeconds,
		DeepSleepSeconds:    p.DeepSleepSeconds,
		RSSI:                rec.RSSI,
		SNR:                 rec.SNR,
		ReceivedAt:          rec.ReceivedAt.Unix(),
	}
	return t.topic(id, "status"), msg
}

// Event translates an EVENT record. A startup event resets the device's
// dedup ring so its restarted sequence numbering is accepted fresh.
func (t *Translator) Event(rec *queue.DecodedRecord) (string, *EventMessage, error) {
	p, err := frame.DecodeEvent(&frame.Frame{Header: rec.Header, Payload: rec.Payload})
	if err != nil {
		return "", nil, err
	}
	id := rec.Header.DeviceID

	if p.EventType == frame.EventTypeStartup {
		t.reg.ClearDedup(id)
	}

	msg := &EventMessage{
		DeviceID:   HexID(id),
		Name:       t.reg.LookupName(id),
		Location:   t.reg.LookupLocation(id),
		Sequence:   rec.Header.Seq,
		EventType:  p.EventType,
		Severity:   severityName(p.Severity),
		Message:    string(p.Message),
		RSSI:       rec.RSSI,
		SNR:        rec.SNR,
		ReceivedAt: rec.ReceivedAt.Unix(),
	}
	return t.topic(id, "events"), msg, nil
}

// ParseCommand validates an inbound JSON command and maps it onto the
// binary command payload for the target device. Numeric parameters are
// serialized as ASCII decimal bytes.
func ParseCommand(data []byte) (frame.DeviceID, CommandRequest, frame.CommandPayload, error) {
	var req CommandRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return 0, req, frame.CommandPayload{}, fmt.Errorf("publish: command json: %w", err)
	}

	raw, err := strconv.ParseUint(req.DeviceID, 16, 64)
	if err != nil || len(req.DeviceID) != 16 {
		return 0, req, frame.CommandPayload{}, ErrBadDeviceID
	}
	id := frame.DeviceID(raw)

	payload, err := mapAction(req)
	if err != nil {
		return 0, req, frame.CommandPayload{}, err
	}
	return id, req, payload, nil
}

func mapAction(req CommandRequest) (frame.CommandPayload, error) {
	switch req.Action {
	case "set_interval":
		v, err := intValue(req, 5, 3600)
		if err != nil {
			return frame.CommandPayload{}, err
		}
		return frame.CommandPayload{CommandType: frame.CommandSetInterval, Parameter: []byte(strconv.Itoa(v))}, nil
	case "set_sleep":
		// 0 disables deep sleep on the device.
		v, err := intValue(req, 0, 3600)
		if err != nil {
			return frame.CommandPayload{}, err
		}
		return frame.CommandPayload{CommandType: frame.CommandSetSleep, Parameter: []byte(strconv.Itoa(v))}, nil
	case "set_baseline":
		if req.Value == nil {
			return frame.CommandPayload{}, ErrValueRequired
		}
		v := *req.Value
		if v < 900 || v > 1100 {
			return frame.CommandPayload{}, ErrValueOutOfRange
		}
		return frame.CommandPayload{CommandType: frame.CommandSetBaseline, Parameter: []byte(strconv.FormatFloat(v, 'f', -1, 64))}, nil
	case "restart":
		return frame.CommandPayload{CommandType: frame.CommandRestart}, nil
	case "status":
		return frame.CommandPayload{CommandType: frame.CommandStatus}, nil
	case "calibrate":
		return frame.CommandPayload{CommandType: frame.CommandCalibrate}, nil
	case "clear_baseline":
		return frame.CommandPayload{CommandType: frame.CommandClearBaseline}, nil
	default:
		return frame.CommandPayload{}, ErrUnknownAction
	}
}

func intValue(req CommandRequest, min, max int) (int, error) {
	if req.Value == nil {
		return 0, ErrValueRequired
	}
	v := *req.Value
	if v != math.Trunc(v) {
		return 0, ErrValueNotInt
	}
	n := int(v)
	if n < min || n > max {
		return 0, ErrValueOutOfRange
	}
	return n, nil
}

func trendName(t byte) string {
	switch t {
	case frame.TrendFalling:
		return "falling"
	case frame.TrendRising:
		return "rising"
	default:
		return "steady"
	}
}

func severityName(s byte) string {
	switch s {
	case frame.SeverityWarning:
		return "warning"
	case frame.SeverityError:
		return "error"
	case frame.SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}
