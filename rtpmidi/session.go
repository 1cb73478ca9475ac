package rtpmidi

import (
	"fmt"

	"github.com/opd-ai/rtpmidid/limits"
	"github.com/opd-ai/rtpmidid/midi"
	"github.com/opd-ai/rtpmidid/rtp"
	pionrtp "github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// PayloadType is the dynamic RTP payload type used for RTP-MIDI.
const PayloadType = 97

// Clock provides the current time in RTP timestamp units.
type Clock interface {
	Now() int64
}

// Session packs MIDI messages into RTP-MIDI packets and broadcasts them to
// every peer of an RTP session. Like rtp.Session it performs no locking.
type Session struct {
	rtp    *rtp.Session
	clock  Clock
	buffer []byte
}

// NewSession creates a packetizer on top of an RTP session.
func NewSession(session *rtp.Session, clock Clock) (*Session, error) {
	if session == nil {
		return nil, fmt.Errorf("rtp session cannot be nil")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock cannot be nil")
	}
	return &Session{
		rtp:    session,
		clock:  clock,
		buffer: make([]byte, rtp.BufferSize),
	}, nil
}

// RTP returns the underlying RTP session.
func (s *Session) RTP() *rtp.Session { return s.rtp }

// Send encodes messages once and sends the result to every peer with
// payload type 97 and the marker bit cleared. A failed send to one peer does
// not stop the others; the returned error is that of the last send
// attempted. With no peers nothing is sent and nil is returned.
func (s *Session) Send(messages []*midi.Message) error {
	now := s.clock.Now()
	n, err := Encode(s.buffer, messages, now)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"messages": len(messages),
			"error":    err.Error(),
		}).Debug("Failed to encode RTP-MIDI payload")
		return err
	}
	payload := s.buffer[:n]

	var (
		peer    *rtp.Peer
		lastErr error
		sent    int
	)
	for {
		peer, err = s.rtp.NextPeer(peer)
		if err != nil {
			return err
		}
		if peer == nil {
			break
		}

		info := s.rtp.NewPacketInfo(peer)
		info.PayloadType = PayloadType
		info.Marker = false
		info.Timestamp = uint32(now)
		info.Payload = [][]byte{payload}

		lastErr = s.rtp.SendPacket(info)
		if lastErr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Send",
				"ssrc":     peer.SSRC(),
				"error":    lastErr.Error(),
			}).Warn("Failed to send RTP-MIDI packet to peer")
			continue
		}
		sent++
	}

	logrus.WithFields(logrus.Fields{
		"function": "Send",
		"messages": len(messages),
		"bytes":    n,
		"peers":    sent,
	}).Debug("RTP-MIDI payload broadcast")
	return lastErr
}

// ParsePacket decodes an RTP-MIDI data packet. Message timestamps are based
// on the packet's RTP timestamp.
func ParsePacket(datagram []byte) (*pionrtp.Packet, []*midi.Message, error) {
	if len(datagram) < limits.RTPHeaderSize {
		return nil, nil, fmt.Errorf("%w: rtp packet of %d bytes", ErrShortPayload, len(datagram))
	}
	pkt := &pionrtp.Packet{}
	if err := pkt.Unmarshal(datagram); err != nil {
		return nil, nil, fmt.Errorf("unmarshal rtp packet: %w", err)
	}
	messages, err := Decode(pkt.Payload, int64(pkt.Timestamp))
	return pkt, messages, err
}
