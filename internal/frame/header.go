package frame

import "encoding/binary"

// Header is the fixed-size frame header carried at the front of every
// radio frame.
type Header struct {
	Type       byte
	DeviceID   DeviceID
	Seq        uint16
	PayloadLen byte
}

// Frame is a decoded header plus its payload bytes.
type Frame struct {
	Header  Header
	Payload []byte
}

// encodeHeader writes the header (including checksum) into the first
// HeaderSize bytes of dst. dst must be at least HeaderSize long.
func encodeHeader(dst []byte, h Header) {
	dst[0] = MagicHi
	dst[1] = MagicLo
	dst[2] = ProtocolVersion
	dst[3] = h.Type
	binary.LittleEndian.PutUint64(dst[4:12], uint64(h.DeviceID))
	binary.LittleEndian.PutUint16(dst[12:14], h.Seq)
	dst[14] = h.PayloadLen

	var chk byte
	for _, b := range dst[:HeaderSize-1] {
		chk ^= b
	}
	dst[15] = chk
}

// checksum computes the XOR checksum over every header byte before the
// checksum byte itself.
func checksum(hdr []byte) byte {
	var chk byte
	for _, b := range hdr[:HeaderSize-1] {
		chk ^= b
	}
	return chk
}

// decodeHeader validates and parses the header from the front of data.
// data must be at least HeaderSize bytes; the caller checks that first.
func decodeHeader(data []byte) (Header, error) {
	if data[0] != MagicHi || data[1] != MagicLo {
		return Header{}, ErrBadMagic
	}
	if data[2] != ProtocolVersion {
		return Header{}, ErrBadVersion
	}
	if data[15] != checksum(data) {
		return Header{}, ErrBadChecksum
	}

	return Header{
		Type:       data[3],
		DeviceID:   DeviceID(binary.LittleEndian.Uint64(data[4:12])),
		Seq:        binary.LittleEndian.Uint16(data[12:14]),
		PayloadLen: data[14],
	}, nil
}
