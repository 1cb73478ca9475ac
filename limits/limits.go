// Package limits provides centralized wire size limits for the AppleMIDI and
// RTP-MIDI protocols. This ensures consistent validation across the codec,
// session and transport packages.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxSessionName is the longest session name carried in an AppleMIDI
	// session command, excluding the terminating NUL.
	MaxSessionName = 63

	// MinSessionCommand is the smallest valid session command: signature,
	// command tag, version, token and SSRC.
	MinSessionCommand = 16

	// MaxSessionCommand is the largest session command: MinSessionCommand
	// plus a full name and its NUL terminator.
	MaxSessionCommand = MinSessionCommand + MaxSessionName + 1

	// SyncCommandSize is the exact size of a synchronization command.
	SyncCommandSize = 36

	// FeedbackCommandSize is the exact size of a receiver feedback command.
	FeedbackCommandSize = 12

	// RTPHeaderSize is the fixed RTP header without CSRC entries.
	RTPHeaderSize = 12

	// MaxCSRC is the largest CSRC count the 4 bit CC field can express.
	MaxCSRC = 15

	// MaxRTPPacket is the size of the shared RTP send buffer.
	MaxRTPPacket = 512

	// MaxRTPMIDIPayload is the largest command section length expressible in
	// the 12 bit RTP-MIDI length field.
	MaxRTPMIDIPayload = 0x0fff

	// MaxDatagram is the largest datagram read from a socket. Anything longer
	// is truncated by the transport and rejected here.
	MaxDatagram = 1500
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateDatagram validates an inbound datagram against MaxDatagram.
// This limit should be applied to all untrusted network input.
func ValidateDatagram(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > MaxDatagram {
		return fmt.Errorf("%w: datagram size %d exceeds limit %d", ErrMessageTooLarge, len(data), MaxDatagram)
	}
	return nil
}

// ValidateSessionName validates a session name against MaxSessionName.
// An empty name is allowed on the wire.
func ValidateSessionName(name string) error {
	if len(name) > MaxSessionName {
		return fmt.Errorf("%w: session name length %d exceeds limit %d", ErrMessageTooLarge, len(name), MaxSessionName)
	}
	return nil
}

// ValidateRTPPacket validates an assembled RTP packet size against
// MaxRTPPacket.
func ValidateRTPPacket(size int) error {
	if size > MaxRTPPacket {
		return fmt.Errorf("%w: rtp packet size %d exceeds limit %d", ErrMessageTooLarge, size, MaxRTPPacket)
	}
	return nil
}
