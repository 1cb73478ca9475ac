package applemidi

import "errors"

// Malformed packet errors. Packets failing to parse are dropped.
var (
	// ErrShortPacket indicates a datagram shorter than signature and tag.
	ErrShortPacket = errors.New("applemidi packet too short")

	// ErrBadSignature indicates the leading 16 bits are not 0xFFFF.
	ErrBadSignature = errors.New("bad applemidi signature")

	// ErrUnknownCommand indicates an unrecognized command tag.
	ErrUnknownCommand = errors.New("unknown applemidi command")

	// ErrBadLength indicates a packet length invalid for its command.
	ErrBadLength = errors.New("bad applemidi command length")
)

// Controller errors.
var (
	// ErrShortWrite indicates the transport accepted fewer bytes than the
	// composed command.
	ErrShortWrite = errors.New("short write")

	// ErrBusy indicates the controller lock was held and the unit of work
	// was dropped.
	ErrBusy = errors.New("controller busy, work dropped")

	// ErrClosed indicates the controller has been closed.
	ErrClosed = errors.New("controller closed")

	// ErrNotRTPMIDI indicates a non-command datagram on the control port.
	ErrNotRTPMIDI = errors.New("not an applemidi command")

	// ErrUnknownPeer indicates a packet from an SSRC not in the peer table.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrInvalidConfig indicates a configuration value out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)
