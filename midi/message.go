package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Message is a single timestamped MIDI message bound to its format.
type Message struct {
	Format    Format
	Data      Data
	Timestamp int64
}

// NewMessage detects the format of b and copies its first Size bytes into a
// new message.
func NewMessage(b []byte, timestamp int64) (*Message, error) {
	f, ok := DetectFormat(b)
	if !ok {
		if len(b) == 0 {
			return nil, fmt.Errorf("%w: empty message", ErrUnknownFormat)
		}
		return nil, fmt.Errorf("%w: status 0x%02x", ErrUnknownFormat, b[0])
	}

	m := &Message{Format: f, Timestamp: timestamp}
	size := f.Size(&m.Data)
	if len(b) < size {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, size, len(b))
	}
	copy(m.Data.Bytes[:], b[:size])
	m.Data.Size = size
	return m, nil
}

// NewNoteOn builds a Note On message. Values outside the 4 bit channel or 7
// bit key and velocity ranges are rejected.
func NewNoteOn(channel, key, velocity uint8, timestamp int64) (*Message, error) {
	if err := checkNote(channel, key, velocity); err != nil {
		return nil, err
	}
	return NewMessage(gomidi.NoteOn(channel, key, velocity), timestamp)
}

// NewNoteOff builds a Note Off message with a release velocity.
func NewNoteOff(channel, key, velocity uint8, timestamp int64) (*Message, error) {
	if err := checkNote(channel, key, velocity); err != nil {
		return nil, err
	}
	m, err := NewMessage(gomidi.NoteOff(channel, key), timestamp)
	if err != nil {
		return nil, err
	}
	if err := m.Set(PropertyVelocity, velocity); err != nil {
		return nil, err
	}
	return m, nil
}

func checkNote(channel, key, velocity uint8) error {
	switch {
	case channel > 0x0f:
		return fmt.Errorf("%w: channel %d", ErrValueOutOfRange, channel)
	case key > 0x7f:
		return fmt.Errorf("%w: key %d", ErrValueOutOfRange, key)
	case velocity > 0x7f:
		return fmt.Errorf("%w: velocity %d", ErrValueOutOfRange, velocity)
	}
	return nil
}

// Set writes a property through the message's format.
func (m *Message) Set(p Property, v byte) error {
	if m.Format == nil {
		return ErrUnknownFormat
	}
	return m.Format.Set(&m.Data, p, v)
}

// Get reads a property through the message's format.
func (m *Message) Get(p Property) (byte, error) {
	if m.Format == nil {
		return 0, ErrUnknownFormat
	}
	return m.Format.Get(&m.Data, p)
}

// Status returns the full status byte.
func (m *Message) Status() byte { return m.Data.Bytes[0] }

// Bytes returns a copy of the message's raw bytes.
func (m *Message) Bytes() []byte {
	out := make([]byte, m.Data.Size)
	copy(out, m.Data.Bytes[:m.Data.Size])
	return out
}

// EncodeRunningStatus writes the message into buf using and updating the
// running status rs.
func (m *Message) EncodeRunningStatus(rs *RunningStatus, buf []byte) (int, error) {
	if m.Format == nil {
		return 0, ErrUnknownFormat
	}
	return m.Format.Encode(&m.Data, rs, buf)
}

// DecodeRunningStatus reads one message from buf, synthesizing the status
// byte from rs when it was elided, and returns the number of bytes read.
func DecodeRunningStatus(rs *RunningStatus, buf []byte, timestamp int64) (*Message, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrBufferTooSmall
	}

	probe := buf[:1]
	if buf[0] < 0x80 {
		if rs == nil || *rs == 0 {
			return nil, 0, ErrNoRunningStatus
		}
		probe = []byte{byte(*rs)}
	}

	f, ok := DetectFormat(probe)
	if !ok {
		return nil, 0, fmt.Errorf("%w: status 0x%02x", ErrUnknownFormat, probe[0])
	}

	m := &Message{Format: f, Timestamp: timestamp}
	n, err := f.Decode(&m.Data, rs, buf)
	if err != nil {
		return nil, 0, err
	}
	return m, n, nil
}

func (m *Message) String() string {
	if m.Format == nil {
		return fmt.Sprintf("unknown % x @%d", m.Bytes(), m.Timestamp)
	}
	return fmt.Sprintf("%s % x @%d", m.Format.Name(), m.Bytes(), m.Timestamp)
}
