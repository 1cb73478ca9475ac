package rtp

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/rtpmidid/limits"
	pionrtp "github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

const (
	rtpVersion    = 2
	paddingBit    = 0x20
	extensionBit  = 0x10
	extHeaderSize = 4
)

// PacketInfo describes one outbound RTP packet.
//
// Callers fill the input fields. SendPacket fills SequenceNumber, SSRC,
// TotalSize and PayloadSize with the values actually put on the wire.
type PacketInfo struct {
	Peer *Peer

	// Padding is the number of padding octets appended, including the final
	// count octet. Zero disables padding.
	Padding uint8

	// Extension is a header extension block: a 16 bit profile, a 16 bit
	// length (rewritten on send) and the extension data. It is padded to a
	// multiple of 4 bytes.
	Extension []byte

	Marker      bool
	PayloadType uint8
	CSRC        []uint32
	Timestamp   uint32

	// Payload chunks are concatenated in order.
	Payload [][]byte

	SequenceNumber uint16
	SSRC           uint32
	TotalSize      int
	PayloadSize    int
}

// SendPacket assembles the packet described by info into the session buffer
// and writes it to the peer's address in a single call.
//
// The sequence number is the peer's last outbound sequence number plus one.
// The peer's outbound sequence number and timestamp change only when the
// whole packet was written, so a failed send can be retried with the same
// sequence number.
func (s *Session) SendPacket(info *PacketInfo) error {
	if info == nil || info.Peer == nil {
		return ErrNilPeer
	}
	peer := info.Peer

	n, payloadSize, err := s.assemble(info)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SendPacket",
			"ssrc":     peer.ssrc,
			"error":    err.Error(),
		}).Debug("Failed to assemble RTP packet")
		return err
	}

	written, err := s.writer.WriteTo(s.buffer[:n], peer.addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "SendPacket",
			"ssrc":        peer.ssrc,
			"remote_addr": peer.addr,
			"error":       err.Error(),
		}).Error("Failed to send RTP packet")
		return fmt.Errorf("send to %v: %w", peer.addr, err)
	}
	if written != n {
		logrus.WithFields(logrus.Fields{
			"function":    "SendPacket",
			"ssrc":        peer.ssrc,
			"remote_addr": peer.addr,
			"expected":    n,
			"written":     written,
		}).Error("Short RTP write")
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, written, n)
	}

	info.TotalSize = n
	info.PayloadSize = payloadSize
	peer.outSeqnum = info.SequenceNumber
	peer.outTimestamp = info.Timestamp

	logrus.WithFields(logrus.Fields{
		"function":     "SendPacket",
		"ssrc":         peer.ssrc,
		"sequence":     info.SequenceNumber,
		"timestamp":    info.Timestamp,
		"payload_type": info.PayloadType,
		"bytes":        n,
	}).Debug("RTP packet sent")
	return nil
}

// assemble writes header, extension, payload and padding into s.buffer and
// returns the packet and payload sizes.
func (s *Session) assemble(info *PacketInfo) (int, int, error) {
	if len(info.Payload) > MaxPayloadChunks {
		return 0, 0, fmt.Errorf("%w: %d chunks, limit %d", ErrTooManyChunks, len(info.Payload), MaxPayloadChunks)
	}
	if len(info.CSRC) > limits.MaxCSRC {
		return 0, 0, fmt.Errorf("%w: %d entries, limit %d", ErrTooManyCSRC, len(info.CSRC), limits.MaxCSRC)
	}
	if len(info.Extension) > 0 && len(info.Extension) < extHeaderSize {
		return 0, 0, fmt.Errorf("%w: %d bytes", ErrInvalidExtension, len(info.Extension))
	}

	info.SequenceNumber = info.Peer.outSeqnum + 1
	info.SSRC = s.ssrc

	header := pionrtp.Header{
		Version:        rtpVersion,
		Marker:         info.Marker,
		PayloadType:    info.PayloadType & 0x7f,
		SequenceNumber: info.SequenceNumber,
		Timestamp:      info.Timestamp,
		SSRC:           info.SSRC,
		CSRC:           info.CSRC,
	}

	extSize := 0
	if len(info.Extension) > 0 {
		extSize = (len(info.Extension) + 3) &^ 3
	}
	payloadSize := 0
	for _, chunk := range info.Payload {
		payloadSize += len(chunk)
	}
	total := header.MarshalSize() + extSize + payloadSize + int(info.Padding)
	if err := limits.ValidateRTPPacket(total); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrPacketTooLarge, err)
	}

	buf := s.buffer[:total]
	n, err := header.MarshalTo(buf)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal rtp header: %w", err)
	}
	if info.Padding > 0 {
		buf[0] |= paddingBit
	}

	if extSize > 0 {
		buf[0] |= extensionBit
		copy(buf[n:], info.Extension)
		for i := n + len(info.Extension); i < n+extSize; i++ {
			buf[i] = 0
		}
		binary.BigEndian.PutUint16(buf[n+2:], uint16(extSize/4-1))
		n += extSize
	}

	for _, chunk := range info.Payload {
		n += copy(buf[n:], chunk)
	}

	if info.Padding > 0 {
		for i := 0; i < int(info.Padding)-1; i++ {
			buf[n] = 0
			n++
		}
		buf[n] = info.Padding
		n++
	}

	return n, payloadSize, nil
}
