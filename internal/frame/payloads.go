package frame

import "encoding/binary"

// ReadingsPayload is the fixed-size environmental reading variant.
type ReadingsPayload struct {
	TemperatureCentiC int16  // centi-degrees C, signed
	HumidityCenti     uint16 // centi-percent relative humidity
	PressureCenti     uint32 // centi-hPa absolute pressure
	AltitudeMeters    int16
	BatteryMilliVolts uint16
	BatteryPercent    byte
	PressureChange    int16 // signed, centi-hPa
	PressureTrend     byte  // TrendFalling/TrendSteady/TrendRising
	SourceTimestamp   uint32
}

const readingsPayloadSize = 2 + 2 + 4 + 2 + 2 + 1 + 2 + 1 + 4 // 20

func encodeReadings(p ReadingsPayload) []byte {
	buf := make([]byte, readingsPayloadSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(p.TemperatureCentiC))
	binary.LittleEndian.PutUint16(buf[2:4], p.HumidityCenti)
	binary.LittleEndian.PutUint32(buf[4:8], p.PressureCenti)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(p.AltitudeMeters))
	binary.LittleEndian.PutUint16(buf[10:12], p.BatteryMilliVolts)
	buf[12] = p.BatteryPercent
	binary.LittleEndian.PutUint16(buf[13:15], uint16(p.PressureChange))
	buf[15] = p.PressureTrend
	binary.LittleEndian.PutUint32(buf[16:20], p.SourceTimestamp)
	return buf
}

func decodeReadings(b []byte) ReadingsPayload {
	return ReadingsPayload{
		TemperatureCentiC: int16(binary.LittleEndian.Uint16(b[0:2])),
		HumidityCenti:     binary.LittleEndian.Uint16(b[2:4]),
		PressureCenti:     binary.LittleEndian.Uint32(b[4:8]),
		AltitudeMeters:    int16(binary.LittleEndian.Uint16(b[8:10])),
		BatteryMilliVolts: binary.LittleEndian.Uint16(b[10:12]),
		BatteryPercent:    b[12],
		PressureChange:    int16(binary.LittleEndian.Uint16(b[13:15])),
		PressureTrend:     b[15],
		SourceTimestamp:   binary.LittleEndian.Uint32(b[16:20]),
	}
}

// StatusPayload is the fixed-size device status variant.
type StatusPayload struct {
	Name                   string // decoded from a NameFieldLen NUL-padded field
	Location               string // decoded from a LocationFieldLen NUL-padded field
	UptimeSeconds          uint32
	WakeCount              uint32
	SensorHealthy          bool
	LastRSSI               int8
	LastSNR                int8
	FreeHeapBytes          uint32
	SensorFailureCount     uint16
	TXFailureCount         uint16
	LastSuccessTXTimestamp uint32
	ReadIntervalSeconds    uint16
	DeepSleepSeconds       uint16
}

const statusPayloadSize = NameFieldLen + LocationFieldLen + 4 + 4 + 1 + 1 + 1 + 4 + 2 + 2 + 4 + 2 + 2 // 59

func encodeStatus(p StatusPayload) []byte {
	buf := make([]byte, statusPayloadSize)
	putPadded(buf[0:NameFieldLen], p.Name)
	putPadded(buf[NameFieldLen:NameFieldLen+LocationFieldLen], p.Location)
	off := NameFieldLen + LocationFieldLen
	binary.LittleEndian.PutUint32(buf[off:off+4], p.UptimeSeconds)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], p.WakeCount)
	off += 4
	buf[off] = boolToByte(p.SensorHealthy)
	off++
	buf[off] = byte(p.LastRSSI)
	off++
	buf[off] = byte(p.LastSNR)
	off++
	binary.LittleEndian.PutUint32(buf[off:off+4], p.FreeHeapBytes)
	off += 4
	binary.LittleEndian.PutUint16(buf[off:off+2], p.SensorFailureCount)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:off+2], p.TXFailureCount)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:off+4], p.LastSuccessTXTimestamp)
	off += 4
	binary.LittleEndian.PutUint16(buf[off:off+2], p.ReadIntervalSeconds)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:off+2], p.DeepSleepSeconds)
	return buf
}

func decodeStatus(b []byte) StatusPayload {
	name := takePadded(b[0:NameFieldLen])
	loc := takePadded(b[NameFieldLen : NameFieldLen+LocationFieldLen])
	off := NameFieldLen + LocationFieldLen
	uptime := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	wake := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	healthy := b[off] != 0
	off++
	rssi := int8(b[off])
	off++
	snr := int8(b[off])
	off++
	heap := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	sensorFail := binary.LittleEndian.Uint16(b[off : off+2])
	off += 2
	txFail := binary.LittleEndian.Uint16(b[off : off+2])
	off += 2
	lastTx := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	readInterval := binary.LittleEndian.Uint16(b[off : off+2])
	off += 2
	deepSleep := binary.LittleEndian.Uint16(b[off : off+2])

	return StatusPayload{
		Name:                   name,
		Location:               loc,
		UptimeSeconds:          uptime,
		WakeCount:              wake,
		SensorHealthy:          healthy,
		LastRSSI:               rssi,
		LastSNR:                snr,
		FreeHeapBytes:          heap,
		SensorFailureCount:     sensorFail,
		TXFailureCount:         txFail,
		LastSuccessTXTimestamp: lastTx,
		ReadIntervalSeconds:    readInterval,
		DeepSleepSeconds:       deepSleep,
	}
}

// EventPayload is the variable-length device event variant.
type EventPayload struct {
	EventType byte
	Severity  byte
	Message   []byte
}

func encodeEvent(p EventPayload) []byte {
	buf := make([]byte, minEventPayloadSize+len(p.Message))
	buf[0] = p.EventType
	buf[1] = p.Severity
	buf[2] = byte(len(p.Message))
	copy(buf[3:], p.Message)
	return buf
}

func decodeEvent(b []byte) (EventPayload, error) {
	msgLen := int(b[2])
	if len(b) != minEventPayloadSize+msgLen {
		return EventPayload{}, ErrPayloadSizeMismatch
	}
	msg := make([]byte, msgLen)
	copy(msg, b[3:])
	return EventPayload{EventType: b[0], Severity: b[1], Message: msg}, nil
}

// CommandPayload is the variable-length command variant. Parameters are
// ASCII decimal digits, never binary-encoded numbers.
type CommandPayload struct {
	CommandType byte
	Parameter   []byte
}

func encodeCommand(p CommandPayload) []byte {
	buf := make([]byte, minCommandPayloadSize+len(p.Parameter))
	buf[0] = p.CommandType
	buf[1] = byte(len(p.Parameter))
	copy(buf[2:], p.Parameter)
	return buf
}

func decodeCommand(b []byte) (CommandPayload, error) {
	paramLen := int(b[1])
	if len(b) != minCommandPayloadSize+paramLen {
		return CommandPayload{}, ErrPayloadSizeMismatch
	}
	param := make([]byte, paramLen)
	copy(param, b[2:])
	return CommandPayload{CommandType: b[0], Parameter: param}, nil
}

// AckPayload is the fixed-size acknowledgement variant.
type AckPayload struct {
	AckedSeq  uint16
	Success   bool
	ErrorCode byte
	RSSI      int8
	SNR       int8
}

const ackPayloadSize = 2 + 1 + 1 + 1 + 1 // 6

func encodeAck(p AckPayload) []byte {
	buf := make([]byte, ackPayloadSize)
	binary.LittleEndian.PutUint16(buf[0:2], p.AckedSeq)
	buf[2] = boolToByte(p.Success)
	buf[3] = p.ErrorCode
	buf[4] = byte(p.RSSI)
	buf[5] = byte(p.SNR)
	return buf
}

func decodeAck(b []byte) AckPayload {
	return AckPayload{
		AckedSeq:  binary.LittleEndian.Uint16(b[0:2]),
		Success:   b[2] != 0,
		ErrorCode: b[3],
		RSSI:      int8(b[4]),
		SNR:       int8(b[5]),
	}
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// putPadded writes s into dst, truncating to len(dst) and NUL-padding the
// remainder. Devices send fixed-width, NUL-padded name/location fields.
func putPadded(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// takePadded returns the string content of a NUL-padded fixed field, up
// to the first NUL byte (or the full field if unterminated).
func takePadded(src []byte) string {
	for i, b := range src {
		if b == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}
