package rtpmidi

import "errors"

// Encoding errors.
var (
	// ErrNoMessages indicates an empty message list was passed to Encode or
	// Send.
	ErrNoMessages = errors.New("no midi messages to send")

	// ErrPayloadTooLarge indicates the command section does not fit the
	// buffer or the 12 bit length field.
	ErrPayloadTooLarge = errors.New("rtp-midi payload too large")
)

// Decoding errors.
var (
	// ErrVarLenTruncated indicates a delta time ran past the end of the
	// command section.
	ErrVarLenTruncated = errors.New("variable length quantity truncated")

	// ErrVarLenTooLong indicates a delta time longer than 4 bytes.
	ErrVarLenTooLong = errors.New("variable length quantity longer than 4 bytes")

	// ErrShortPayload indicates a header or command section length that
	// exceeds the received payload.
	ErrShortPayload = errors.New("rtp-midi payload shorter than its header")
)
