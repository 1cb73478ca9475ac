package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/opd-ai/rtpmidid/limits"
	"github.com/sirupsen/logrus"
)

const (
	// MaxPeers is the capacity of a session's peer table.
	MaxPeers = 16

	// BufferSize is the size of the scratch buffer packets are assembled in.
	BufferSize = limits.MaxRTPPacket

	// MaxPayloadChunks is the largest number of payload chunks per packet.
	MaxPayloadChunks = 16
)

// PacketWriter is the datagram send primitive a session transmits through.
// transport.Transport satisfies it.
type PacketWriter interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Session is an RTP session: our own SSRC, a fixed size peer table and a
// shared send buffer.
//
// A Session performs no locking. Callers serialize access, normally under
// the session controller's lock.
type Session struct {
	ssrc   uint32
	writer PacketWriter
	peers  [MaxPeers]*Peer
	buffer []byte

	defaults PacketInfo
}

// NewSession creates a session with an empty peer table and a random SSRC.
func NewSession(writer PacketWriter) (*Session, error) {
	if writer == nil {
		return nil, fmt.Errorf("packet writer cannot be nil")
	}

	ssrcBytes := make([]byte, 4)
	if _, err := rand.Read(ssrcBytes); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewSession",
			"error":    err.Error(),
		}).Error("Failed to generate SSRC")
		return nil, fmt.Errorf("failed to generate SSRC: %w", err)
	}

	s := &Session{
		ssrc:   binary.BigEndian.Uint32(ssrcBytes),
		writer: writer,
		buffer: make([]byte, BufferSize),
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewSession",
		"ssrc":     s.ssrc,
	}).Debug("RTP session created")

	return s, nil
}

// SSRC returns the session's own synchronization source identifier.
func (s *Session) SSRC() uint32 { return s.ssrc }

// SetDefaults replaces the template returned by NewPacketInfo.
func (s *Session) SetDefaults(info PacketInfo) {
	info.Peer = nil
	info.Payload = nil
	s.defaults = info
}

// NewPacketInfo returns a copy of the session's packet template addressed
// to peer.
func (s *Session) NewPacketInfo(peer *Peer) *PacketInfo {
	info := s.defaults
	info.Peer = peer
	if peer != nil && info.Timestamp == 0 {
		info.Timestamp = peer.outTimestamp
	}
	return &info
}

func slot(ssrc uint32, i int) int {
	return (int(ssrc%MaxPeers) + i) % MaxPeers
}

// AddPeer inserts peer at the first free slot of its probe sequence.
func (s *Session) AddPeer(peer *Peer) error {
	if peer == nil {
		return ErrNilPeer
	}

	free := -1
	for i := 0; i < MaxPeers; i++ {
		idx := slot(peer.ssrc, i)
		p := s.peers[idx]
		if p == nil {
			if free < 0 {
				free = idx
			}
			continue
		}
		if p == peer || p.ssrc == peer.ssrc {
			return fmt.Errorf("%w: 0x%08x", ErrDuplicateSSRC, peer.ssrc)
		}
	}
	if free < 0 {
		logrus.WithFields(logrus.Fields{
			"function": "AddPeer",
			"ssrc":     peer.ssrc,
		}).Warn("Peer table full")
		return ErrSessionFull
	}

	s.peers[free] = peer

	logrus.WithFields(logrus.Fields{
		"function":    "AddPeer",
		"ssrc":        peer.ssrc,
		"remote_addr": peer.addr,
		"slot":        free,
	}).Info("Peer added")
	return nil
}

// RemovePeer clears the slot holding exactly this peer object.
// ErrPeerNotFound is an expected outcome, e.g. for a repeated end session.
func (s *Session) RemovePeer(peer *Peer) error {
	if peer == nil {
		return ErrNilPeer
	}
	idx, ok := s.indexOf(peer)
	if !ok {
		return ErrPeerNotFound
	}
	s.peers[idx] = nil

	logrus.WithFields(logrus.Fields{
		"function": "RemovePeer",
		"ssrc":     peer.ssrc,
		"slot":     idx,
	}).Info("Peer removed")
	return nil
}

// FindPeerBySSRC returns the peer with the given SSRC.
func (s *Session) FindPeerBySSRC(ssrc uint32) (*Peer, error) {
	for i := 0; i < MaxPeers; i++ {
		p := s.peers[slot(ssrc, i)]
		if p != nil && p.ssrc == ssrc {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: ssrc 0x%08x", ErrPeerNotFound, ssrc)
}

// NextPeer returns the first occupied slot after cursor, or the first peer
// in the table when cursor is nil. It returns nil once the end of the table
// is reached. A cursor that is not in the table is an error.
func (s *Session) NextPeer(cursor *Peer) (*Peer, error) {
	start := 0
	if cursor != nil {
		idx, ok := s.indexOf(cursor)
		if !ok {
			return nil, ErrPeerNotFound
		}
		start = idx + 1
	}
	for i := start; i < MaxPeers; i++ {
		if s.peers[i] != nil {
			return s.peers[i], nil
		}
	}
	return nil, nil
}

// Peers returns the peers in table order.
func (s *Session) Peers() []*Peer {
	out := make([]*Peer, 0, MaxPeers)
	for _, p := range s.peers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of peers in the table.
func (s *Session) Len() int {
	n := 0
	for _, p := range s.peers {
		if p != nil {
			n++
		}
	}
	return n
}

func (s *Session) indexOf(peer *Peer) (int, bool) {
	for i := 0; i < MaxPeers; i++ {
		idx := slot(peer.ssrc, i)
		if s.peers[idx] == peer {
			return idx, true
		}
	}
	return 0, false
}
