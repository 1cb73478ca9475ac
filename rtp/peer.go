package rtp

import (
	"fmt"
	"net"
	"sync/atomic"
)

// Peer is a remote participant of an RTP session, identified by its SSRC.
//
// Outbound sequence number and timestamp are only changed by
// Session.SendPacket after a complete send. Inbound values are updated by
// the receiver as data packets arrive.
type Peer struct {
	ssrc uint32
	addr net.Addr

	inSeqnum     uint16
	inTimestamp  uint32
	outSeqnum    uint16
	outTimestamp uint32

	// unreported is set when packets arrived since the last receiver
	// feedback.
	unreported bool

	clockOffset atomic.Int64

	// Info is an opaque per-peer slot reserved for journal state. It is not
	// read by this package.
	Info any
}

// NewPeer creates a peer reachable at addr.
func NewPeer(ssrc uint32, addr net.Addr) *Peer {
	return &Peer{ssrc: ssrc, addr: addr}
}

// SSRC returns the peer's synchronization source identifier.
func (p *Peer) SSRC() uint32 { return p.ssrc }

// Addr returns the address data packets are sent to.
func (p *Peer) Addr() net.Addr { return p.addr }

// OutSeqnum returns the sequence number of the last packet sent to the peer.
func (p *Peer) OutSeqnum() uint16 { return p.outSeqnum }

// OutTimestamp returns the timestamp of the last packet sent to the peer.
func (p *Peer) OutTimestamp() uint32 { return p.outTimestamp }

// InSeqnum returns the sequence number of the last packet received.
func (p *Peer) InSeqnum() uint16 { return p.inSeqnum }

// InTimestamp returns the timestamp of the last packet received.
func (p *Peer) InTimestamp() uint32 { return p.inTimestamp }

// UpdateInbound records the header values of a received packet.
func (p *Peer) UpdateInbound(seq uint16, timestamp uint32) {
	p.inSeqnum = seq
	p.inTimestamp = timestamp
	p.unreported = true
}

// PendingFeedback reports whether packets were received since the last call
// to MarkReported, returning the sequence number to acknowledge.
func (p *Peer) PendingFeedback() (uint16, bool) {
	return p.inSeqnum, p.unreported
}

// MarkReported clears the pending feedback flag.
func (p *Peer) MarkReported() {
	p.unreported = false
}

// SetClockOffset stores the estimated offset between the peer's clock and
// ours, in local clock ticks.
func (p *Peer) SetClockOffset(offset int64) {
	p.clockOffset.Store(offset)
}

// ClockOffset returns the last stored clock offset estimate.
func (p *Peer) ClockOffset() int64 {
	return p.clockOffset.Load()
}

func (p *Peer) String() string {
	return fmt.Sprintf("peer(ssrc=0x%08x addr=%v)", p.ssrc, p.addr)
}
