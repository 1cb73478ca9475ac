package rtpmidi

import (
	"errors"
	"fmt"

	"github.com/opd-ai/rtpmidid/limits"
	"github.com/opd-ai/rtpmidid/midi"
)

// Command section header flags.
const (
	flagLongHeader = 0x80 // B: 12 bit length in two bytes
	flagJournal    = 0x40 // J: recovery journal follows the command section
	flagZero       = 0x20 // Z: first command carries a delta time
	flagPhantom    = 0x10 // P: first status byte was elided by the sender

	maxShortLength = 0x0f
)

// Header is the decoded RTP-MIDI command section header.
type Header struct {
	Journal bool
	Zero    bool
	Phantom bool
	Length  int
	// Size is the header's own encoded size, 1 or 2.
	Size int
}

// Encode writes an RTP-MIDI command section for messages into buf and
// returns the number of bytes written.
//
// Delta times are derived from the message timestamps: the first relative
// to base, each following one relative to its predecessor. Negative deltas
// are sent as zero. The first delta time is omitted when it is zero. Running
// status is shared across the whole list. The journal flag is never set.
func Encode(buf []byte, messages []*midi.Message, base int64) (int, error) {
	if len(messages) == 0 {
		return 0, ErrNoMessages
	}
	if len(buf) < 2 {
		return 0, fmt.Errorf("%w: buffer of %d bytes", ErrPayloadTooLarge, len(buf))
	}

	body := buf[2:]
	var rs midi.RunningStatus
	var flags byte
	n := 0
	prev := base

	for i, m := range messages {
		delta := m.Timestamp - prev
		if delta < 0 {
			delta = 0
		} else {
			prev = m.Timestamp
		}

		if i > 0 || delta != 0 {
			if i == 0 {
				flags |= flagZero
			}
			w := EncodeVarLen(uint32(delta), body[n:])
			if w == 0 {
				return 0, fmt.Errorf("%w: delta time of message %d", ErrPayloadTooLarge, i)
			}
			n += w
		}

		w, err := m.EncodeRunningStatus(&rs, body[n:])
		if err != nil {
			if errors.Is(err, midi.ErrBufferTooSmall) {
				return 0, fmt.Errorf("%w: message %d", ErrPayloadTooLarge, i)
			}
			return 0, fmt.Errorf("encode message %d: %w", i, err)
		}
		n += w
	}

	if n > limits.MaxRTPMIDIPayload {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, n, limits.MaxRTPMIDIPayload)
	}

	if n <= maxShortLength {
		copy(buf[1:], body[:n])
		buf[0] = flags | byte(n)
		return n + 1, nil
	}
	buf[0] = flagLongHeader | flags | byte(n>>8)
	buf[1] = byte(n)
	return n + 2, nil
}

// ParseHeader decodes the command section header at the start of payload.
func ParseHeader(payload []byte) (Header, error) {
	if len(payload) < 1 {
		return Header{}, ErrShortPayload
	}
	b := payload[0]
	h := Header{
		Journal: b&flagJournal != 0,
		Zero:    b&flagZero != 0,
		Phantom: b&flagPhantom != 0,
		Length:  int(b & 0x0f),
		Size:    1,
	}
	if b&flagLongHeader != 0 {
		if len(payload) < 2 {
			return Header{}, ErrShortPayload
		}
		h.Length = h.Length<<8 | int(payload[1])
		h.Size = 2
	}
	if len(payload) < h.Size+h.Length {
		return Header{}, fmt.Errorf("%w: length %d, have %d", ErrShortPayload, h.Length, len(payload)-h.Size)
	}
	return h, nil
}

// Decode reads the command section of an RTP-MIDI payload. Message
// timestamps are base plus the accumulated delta times. A trailing recovery
// journal is ignored. Messages decoded before an error are returned with it.
func Decode(payload []byte, base int64) ([]*midi.Message, error) {
	h, err := ParseHeader(payload)
	if err != nil {
		return nil, err
	}
	body := payload[h.Size : h.Size+h.Length]

	var rs midi.RunningStatus
	var messages []*midi.Message
	ts := base

	for i := 0; len(body) > 0; i++ {
		if i > 0 || h.Zero {
			delta, n, err := DecodeVarLen(body)
			if err != nil {
				return messages, fmt.Errorf("delta time of message %d: %w", i, err)
			}
			ts += int64(delta)
			body = body[n:]
			if len(body) == 0 {
				return messages, fmt.Errorf("message %d: %w", i, ErrShortPayload)
			}
		}

		m, n, err := midi.DecodeRunningStatus(&rs, body, ts)
		if err != nil {
			return messages, fmt.Errorf("decode message %d: %w", i, err)
		}
		messages = append(messages, m)
		body = body[n:]
	}
	return messages, nil
}
