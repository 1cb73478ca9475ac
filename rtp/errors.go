package rtp

import "errors"

// Sentinel errors for rtp package operations.
// These errors enable reliable error classification using errors.Is().

// Peer table errors.
var (
	// ErrSessionFull indicates every slot of the peer table is occupied.
	ErrSessionFull = errors.New("rtp session peer table is full")

	// ErrPeerNotFound indicates the peer is not present in the table.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrDuplicateSSRC indicates a peer with the same SSRC is already present.
	ErrDuplicateSSRC = errors.New("peer with this ssrc already present")

	// ErrNilPeer indicates a nil peer was passed.
	ErrNilPeer = errors.New("peer is nil")
)

// Send errors.
var (
	// ErrShortWrite indicates the transport accepted fewer bytes than the
	// assembled packet. Peer state is left untouched.
	ErrShortWrite = errors.New("short write")

	// ErrPacketTooLarge indicates the assembled packet does not fit the
	// session send buffer.
	ErrPacketTooLarge = errors.New("packet too large")

	// ErrInvalidExtension indicates an extension block shorter than its
	// 4 byte header.
	ErrInvalidExtension = errors.New("invalid header extension")

	// ErrTooManyChunks indicates more payload chunks than MaxPayloadChunks.
	ErrTooManyChunks = errors.New("too many payload chunks")

	// ErrTooManyCSRC indicates more contributing sources than the header
	// can carry.
	ErrTooManyCSRC = errors.New("too many csrc entries")
)
