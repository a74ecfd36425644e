package frame

import "errors"

// Decode failure modes. All are local to the codec: callers count and
// log them, never propagate them further.
var (
	ErrFrameTooShort       = errors.New("frame: too short for header")
	ErrBadMagic            = errors.New("frame: bad magic bytes")
	ErrBadVersion          = errors.New("frame: unsupported protocol version")
	ErrBadChecksum         = errors.New("frame: header checksum mismatch")
	ErrTruncated           = errors.New("frame: payload shorter than declared length")
	ErrPayloadSizeMismatch = errors.New("frame: payload size does not match message type")
	ErrUnknownMessageType  = errors.New("frame: unknown message type")
)
