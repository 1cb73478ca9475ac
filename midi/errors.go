package midi

import "errors"

// Sentinel errors for message codec operations.
var (
	// ErrUnknownFormat indicates no format descriptor matched the bytes.
	ErrUnknownFormat = errors.New("unknown MIDI message format")

	// ErrInvalidProperty indicates the property is not supported by the format.
	ErrInvalidProperty = errors.New("invalid property for message format")

	// ErrValueOutOfRange indicates a property value outside its bit mask.
	ErrValueOutOfRange = errors.New("property value out of range")

	// ErrBufferTooSmall indicates the destination or source buffer is too short.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrInvalidStatus indicates a byte that cannot act as a status byte.
	ErrInvalidStatus = errors.New("invalid status byte")

	// ErrNoRunningStatus indicates a data byte arrived with no running status active.
	ErrNoRunningStatus = errors.New("data byte without running status")
)
