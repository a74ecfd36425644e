package frame

// Encode serializes f into a single wire frame: header followed by the
// raw payload bytes already produced by one of the EncodeXxx helpers.
func Encode(f Frame) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	h := f.Header
	h.PayloadLen = byte(len(f.Payload))
	encodeHeader(buf[:HeaderSize], h)
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// EncodeReadings builds a complete Readings frame.
func EncodeReadings(id DeviceID, seq uint16, p ReadingsPayload) []byte {
	payload := encodeReadings(p)
	return Encode(Frame{Header: Header{Type: TypeReadings, DeviceID: id, Seq: seq}, Payload: payload})
}

// EncodeStatus builds a complete Status frame.
func EncodeStatus(id DeviceID, seq uint16, p StatusPayload) []byte {
	payload := encodeStatus(p)
	return Encode(Frame{Header: Header{Type: TypeStatus, DeviceID: id, Seq: seq}, Payload: payload})
}

// EncodeEvent builds a complete Event frame.
func EncodeEvent(id DeviceID, seq uint16, p EventPayload) []byte {
	payload := encodeEvent(p)
	return Encode(Frame{Header: Header{Type: TypeEvent, DeviceID: id, Seq: seq}, Payload: payload})
}

// EncodeCommand builds a complete Command frame.
func EncodeCommand(id DeviceID, seq uint16, p CommandPayload) []byte {
	payload := encodeCommand(p)
	return Encode(Frame{Header: Header{Type: TypeCommand, DeviceID: id, Seq: seq}, Payload: payload})
}

// EncodeAck builds a complete Ack frame.
func EncodeAck(id DeviceID, seq uint16, p AckPayload) []byte {
	payload := encodeAck(p)
	return Encode(Frame{Header: Header{Type: TypeAck, DeviceID: id, Seq: seq}, Payload: payload})
}

// Decode validates and parses a raw wire frame. Checks run in a fixed
// order: length, magic, version, checksum, then truncation and
// payload-size-mismatch against the declared message type.
func Decode(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, ErrFrameTooShort
	}

	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	// The length field is a full byte; values past the protocol maximum
	// are representable but never legal.
	if int(h.PayloadLen) > MaxPayloadSize {
		return nil, ErrTruncated
	}

	end := HeaderSize + int(h.PayloadLen)
	if len(data) < end {
		return nil, ErrTruncated
	}
	payload := data[HeaderSize:end]

	if err := validatePayloadSize(h.Type, len(payload)); err != nil {
		return nil, err
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return &Frame{Header: h, Payload: out}, nil
}

func validatePayloadSize(msgType byte, n int) error {
	switch msgType {
	case TypeReadings:
		if n != readingsPayloadSize {
			return ErrPayloadSizeMismatch
		}
	case TypeStatus:
		if n != statusPayloadSize {
			return ErrPayloadSizeMismatch
		}
	case TypeEvent:
		if n < minEventPayloadSize {
			return ErrPayloadSizeMismatch
		}
	case TypeCommand:
		if n < minCommandPayloadSize {
			return ErrPayloadSizeMismatch
		}
	case TypeAck:
		if n != ackPayloadSize {
			return ErrPayloadSizeMismatch
		}
	default:
		return ErrUnknownMessageType
	}
	return nil
}

// DecodeReadings decodes f's payload as a Readings variant. Callers must
// first confirm f.Header.Type == TypeReadings.
func DecodeReadings(f *Frame) ReadingsPayload {
	return decodeReadings(f.Payload)
}

// DecodeStatus decodes f's payload as a Status variant.
func DecodeStatus(f *Frame) StatusPayload {
	return decodeStatus(f.Payload)
}

// DecodeEvent decodes f's payload as an Event variant.
func DecodeEvent(f *Frame) (EventPayload, error) {
	return decodeEvent(f.Payload)
}

// DecodeCommand decodes f's payload as a Command variant.
func DecodeCommand(f *Frame) (CommandPayload, error) {
	return decodeCommand(f.Payload)
}

// DecodeAck decodes f's payload as an Ack variant.
func DecodeAck(f *Frame) AckPayload {
	return decodeAck(f.Payload)
}
