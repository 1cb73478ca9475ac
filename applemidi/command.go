package applemidi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/rtpmidid/limits"
)

// Signature prefixes every AppleMIDI command packet.
const Signature uint16 = 0xffff

// ProtocolVersion is the session protocol version sent in invitations.
const ProtocolVersion uint32 = 2

// CommandType is the 16 bit command tag following the signature.
type CommandType uint16

// AppleMIDI command tags (two ASCII characters each).
const (
	CommandInvitation         CommandType = 0x494e // "IN"
	CommandInvitationAccepted CommandType = 0x4f4b // "OK"
	CommandInvitationRejected CommandType = 0x4e4f // "NO"
	CommandEndSession         CommandType = 0x4259 // "BY"
	CommandSynchronization    CommandType = 0x434b // "CK"
	CommandReceiverFeedback   CommandType = 0x5253 // "RS"
)

func (t CommandType) String() string {
	switch t {
	case CommandInvitation, CommandInvitationAccepted, CommandInvitationRejected,
		CommandEndSession, CommandSynchronization, CommandReceiverFeedback:
		return string([]byte{byte(t >> 8), byte(t)})
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// isSession reports whether t uses the session payload layout.
func (t CommandType) isSession() bool {
	switch t {
	case CommandInvitation, CommandInvitationAccepted, CommandInvitationRejected, CommandEndSession:
		return true
	}
	return false
}

func (t CommandType) known() bool {
	return t.isSession() || t == CommandSynchronization || t == CommandReceiverFeedback
}

// SessionData is the payload of IN, OK, NO and BY.
type SessionData struct {
	Version uint32
	Token   uint32
	SSRC    uint32
	Name    string
}

// SyncData is the payload of CK. Count is the stage of the exchange, 0 to 2
// on the wire and 3 as the local "start fresh" marker.
type SyncData struct {
	SSRC       uint32
	Count      uint8
	Timestamps [3]uint64
}

// FeedbackData is the payload of RS.
type FeedbackData struct {
	SSRC     uint32
	Sequence uint32
}

// Command is a decoded AppleMIDI command. Only the payload matching Type is
// meaningful.
type Command struct {
	Type     CommandType
	Session  SessionData
	Sync     SyncData
	Feedback FeedbackData
}

// SSRC returns the sender SSRC carried by the command's payload.
func (c *Command) SSRC() uint32 {
	switch {
	case c.Type.isSession():
		return c.Session.SSRC
	case c.Type == CommandSynchronization:
		return c.Sync.SSRC
	case c.Type == CommandReceiverFeedback:
		return c.Feedback.SSRC
	}
	return 0
}

// IsCommand peeks at the first 4 bytes of data and reports whether they are
// the signature followed by a known command tag.
func IsCommand(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	if binary.BigEndian.Uint16(data[0:2]) != Signature {
		return false
	}
	return CommandType(binary.BigEndian.Uint16(data[2:4])).known()
}

// ParseCommand decodes an AppleMIDI command packet.
//
// Session commands need at least 16 bytes; a name longer than 63 bytes is
// truncated. Synchronization commands must be exactly 36 bytes and receiver
// feedback exactly 12.
func ParseCommand(data []byte) (*Command, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(data))
	}
	if sig := binary.BigEndian.Uint16(data[0:2]); sig != Signature {
		return nil, fmt.Errorf("%w: 0x%04x", ErrBadSignature, sig)
	}

	cmd := &Command{Type: CommandType(binary.BigEndian.Uint16(data[2:4]))}
	switch {
	case cmd.Type.isSession():
		if len(data) < limits.MinSessionCommand {
			return nil, fmt.Errorf("%w: %s with %d bytes", ErrBadLength, cmd.Type, len(data))
		}
		cmd.Session.Version = binary.BigEndian.Uint32(data[4:8])
		cmd.Session.Token = binary.BigEndian.Uint32(data[8:12])
		cmd.Session.SSRC = binary.BigEndian.Uint32(data[12:16])
		cmd.Session.Name = parseName(data[16:])

	case cmd.Type == CommandSynchronization:
		if len(data) != limits.SyncCommandSize {
			return nil, fmt.Errorf("%w: %s with %d bytes", ErrBadLength, cmd.Type, len(data))
		}
		cmd.Sync.SSRC = binary.BigEndian.Uint32(data[4:8])
		cmd.Sync.Count = data[8]
		for i := range cmd.Sync.Timestamps {
			cmd.Sync.Timestamps[i] = binary.BigEndian.Uint64(data[12+8*i:])
		}

	case cmd.Type == CommandReceiverFeedback:
		if len(data) != limits.FeedbackCommandSize {
			return nil, fmt.Errorf("%w: %s with %d bytes", ErrBadLength, cmd.Type, len(data))
		}
		cmd.Feedback.SSRC = binary.BigEndian.Uint32(data[4:8])
		cmd.Feedback.Sequence = binary.BigEndian.Uint32(data[8:12])

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Type)
	}
	return cmd, nil
}

func parseName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if len(b) > limits.MaxSessionName {
		b = b[:limits.MaxSessionName]
	}
	return string(b)
}

// MarshalBinary encodes the command with its signature and tag. An empty
// session name is omitted; a non-empty one is NUL-terminated.
func (c *Command) MarshalBinary() ([]byte, error) {
	var buf []byte
	switch {
	case c.Type.isSession():
		if err := limits.ValidateSessionName(c.Session.Name); err != nil {
			return nil, err
		}
		size := limits.MinSessionCommand
		if c.Session.Name != "" {
			size += len(c.Session.Name) + 1
		}
		buf = make([]byte, size)
		binary.BigEndian.PutUint32(buf[4:], c.Session.Version)
		binary.BigEndian.PutUint32(buf[8:], c.Session.Token)
		binary.BigEndian.PutUint32(buf[12:], c.Session.SSRC)
		copy(buf[16:], c.Session.Name)
		if err := limits.ValidateMessageSize(buf, limits.MaxSessionCommand); err != nil {
			return nil, err
		}

	case c.Type == CommandSynchronization:
		buf = make([]byte, limits.SyncCommandSize)
		binary.BigEndian.PutUint32(buf[4:], c.Sync.SSRC)
		binary.BigEndian.PutUint32(buf[8:], uint32(c.Sync.Count)<<24)
		for i, ts := range c.Sync.Timestamps {
			binary.BigEndian.PutUint64(buf[12+8*i:], ts)
		}

	case c.Type == CommandReceiverFeedback:
		buf = make([]byte, limits.FeedbackCommandSize)
		binary.BigEndian.PutUint32(buf[4:], c.Feedback.SSRC)
		binary.BigEndian.PutUint32(buf[8:], c.Feedback.Sequence)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, c.Type)
	}

	binary.BigEndian.PutUint16(buf[0:], Signature)
	binary.BigEndian.PutUint16(buf[2:], uint16(c.Type))
	return buf, nil
}

func (c *Command) String() string {
	switch {
	case c.Type.isSession():
		return fmt.Sprintf("%s(version=%d token=0x%08x ssrc=0x%08x name=%q)",
			c.Type, c.Session.Version, c.Session.Token, c.Session.SSRC, c.Session.Name)
	case c.Type == CommandSynchronization:
		return fmt.Sprintf("%s(ssrc=0x%08x count=%d ts=%v)", c.Type, c.Sync.SSRC, c.Sync.Count, c.Sync.Timestamps)
	case c.Type == CommandReceiverFeedback:
		return fmt.Sprintf("%s(ssrc=0x%08x seq=%d)", c.Type, c.Feedback.SSRC, c.Feedback.Sequence)
	}
	return c.Type.String()
}
