package midi

import "fmt"

// Status nibbles of the channel voice messages handled by this package.
const (
	StatusNoteOff byte = 0x8
	StatusNoteOn  byte = 0x9
)

// DataBytes is the capacity of a message's raw byte storage.
const DataBytes = 4

// Property identifies a field of a message that can be read or written
// through its Format.
type Property int

const (
	// PropertyStatus is the high nibble of the status byte.
	PropertyStatus Property = iota
	// PropertyChannel is the low nibble of the status byte.
	PropertyChannel
	// PropertyKey is the note number.
	PropertyKey
	// PropertyVelocity is the note velocity.
	PropertyVelocity
)

func (p Property) String() string {
	switch p {
	case PropertyStatus:
		return "status"
	case PropertyChannel:
		return "channel"
	case PropertyKey:
		return "key"
	case PropertyVelocity:
		return "velocity"
	default:
		return fmt.Sprintf("property(%d)", int(p))
	}
}

// Data holds the raw bytes of a single message as they appear on a MIDI
// cable, status byte first.
type Data struct {
	Bytes [DataBytes]byte
	Size  int
}

// Format describes how messages of one kind are tested, accessed and
// serialized. Formats are stateless and shared.
type Format interface {
	// Name returns a short human readable name.
	Name() string
	// Test reports whether b starts with a message of this format.
	Test(b []byte) bool
	// Size returns the full (non running status) encoded size.
	Size(d *Data) int
	// Set writes a property value into d.
	Set(d *Data, p Property, v byte) error
	// Get reads a property value from d.
	Get(d *Data, p Property) (byte, error)
	// Encode writes d into buf, eliding the status byte when it equals the
	// running status, and returns the number of bytes written.
	Encode(d *Data, rs *RunningStatus, buf []byte) (int, error)
	// Decode reads one message from buf into d and returns the number of
	// bytes consumed.
	Decode(d *Data, rs *RunningStatus, buf []byte) (int, error)
}

// formats is scanned in order by DetectFormat. New channel voice and system
// formats slot in here.
var formats = []Format{
	noteOffOn{},
}

// DetectFormat returns the first format whose Test matches b.
func DetectFormat(b []byte) (Format, bool) {
	if len(b) == 0 {
		return nil, false
	}
	for _, f := range formats {
		if f.Test(b) {
			return f, true
		}
	}
	return nil, false
}

// noteOffOn implements Note Off (0x8n) and Note On (0x9n).
type noteOffOn struct{}

func (noteOffOn) Name() string { return "note off/on" }

func (noteOffOn) Test(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	hi := highNibble(b[0])
	return hi == StatusNoteOff || hi == StatusNoteOn
}

func (noteOffOn) Size(*Data) int { return 3 }

func (noteOffOn) Set(d *Data, p Property, v byte) error {
	switch p {
	case PropertyStatus:
		if v != StatusNoteOff && v != StatusNoteOn {
			return fmt.Errorf("%w: %s 0x%x", ErrValueOutOfRange, p, v)
		}
		d.Bytes[0] = nibbles(v, lowNibble(d.Bytes[0]))
	case PropertyChannel:
		if v&0x0f != v {
			return fmt.Errorf("%w: %s %d", ErrValueOutOfRange, p, v)
		}
		d.Bytes[0] = nibbles(highNibble(d.Bytes[0]), v)
	case PropertyKey:
		if v&0x7f != v {
			return fmt.Errorf("%w: %s %d", ErrValueOutOfRange, p, v)
		}
		d.Bytes[1] = v
	case PropertyVelocity:
		if v&0x7f != v {
			return fmt.Errorf("%w: %s %d", ErrValueOutOfRange, p, v)
		}
		d.Bytes[2] = v
	default:
		return fmt.Errorf("%w: %s", ErrInvalidProperty, p)
	}
	if d.Size < 3 {
		d.Size = 3
	}
	return nil
}

func (noteOffOn) Get(d *Data, p Property) (byte, error) {
	switch p {
	case PropertyStatus:
		return highNibble(d.Bytes[0]), nil
	case PropertyChannel:
		return lowNibble(d.Bytes[0]), nil
	case PropertyKey:
		return d.Bytes[1], nil
	case PropertyVelocity:
		return d.Bytes[2], nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidProperty, p)
	}
}

func (noteOffOn) Encode(d *Data, rs *RunningStatus, buf []byte) (int, error) {
	return encodeThreeBytes(d, rs, buf)
}

func (noteOffOn) Decode(d *Data, rs *RunningStatus, buf []byte) (int, error) {
	return decodeThreeBytes(d, rs, buf)
}

func highNibble(b byte) byte { return b >> 4 }
func lowNibble(b byte) byte  { return b & 0x0f }
func nibbles(hi, lo byte) byte {
	return hi<<4 | lo&0x0f
}
