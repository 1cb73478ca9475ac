package applemidi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/rtpmidid/limits"
	"github.com/opd-ai/rtpmidid/midi"
	"github.com/opd-ai/rtpmidid/rtp"
	"github.com/opd-ai/rtpmidid/rtpmidi"
	"github.com/opd-ai/rtpmidid/transport"
	"github.com/sirupsen/logrus"
)

// Role identifies the socket a datagram arrived on.
type Role int

const (
	// RoleControl is the session control port.
	RoleControl Role = iota
	// RoleData is the RTP port, control port + 1.
	RoleData
)

func (r Role) String() string {
	switch r {
	case RoleControl:
		return "control"
	case RoleData:
		return "rtp"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// MIDIHandler receives MIDI messages decoded from a peer's RTP-MIDI packet.
type MIDIHandler func(ssrc uint32, messages []*midi.Message)

// Controller runs the AppleMIDI session protocol for one local endpoint:
// invitation handling, clock synchronization, end session and the periodic
// housekeeping sweep. It owns the RTP and RTP-MIDI sessions.
//
// Inbound datagrams and housekeeping ticks never wait for the controller
// lock; when it is held the unit of work is dropped.
type Controller struct {
	mu sync.Mutex

	cfg     Config
	control transport.Transport
	data    transport.Transport
	clock   rtpmidi.Clock
	time    TimeProvider

	rtp     *rtp.Session
	rtpmidi *rtpmidi.Session

	token  uint32
	accept atomic.Bool

	cursor *rtp.Peer
	syncs  map[uint32]*syncState
	onMIDI MIDIHandler

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	closed    bool
}

// NewController creates a controller on the given control and RTP
// transports and registers itself as their datagram handler. Call Start to
// begin housekeeping.
func NewController(cfg Config, control, data transport.Transport, clock rtpmidi.Clock) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if control == nil || data == nil {
		return nil, fmt.Errorf("transports cannot be nil")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock cannot be nil")
	}

	rtpSession, err := rtp.NewSession(data)
	if err != nil {
		return nil, fmt.Errorf("create rtp session: %w", err)
	}
	midiSession, err := rtpmidi.NewSession(rtpSession, clock)
	if err != nil {
		return nil, fmt.Errorf("create rtp-midi session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:     cfg,
		control: control,
		data:    data,
		clock:   clock,
		time:    DefaultTimeProvider{},
		rtp:     rtpSession,
		rtpmidi: midiSession,
		// The token mixes the startup clock reading with the random SSRC.
		token:  uint32(clock.Now()) ^ rtpSession.SSRC(),
		syncs:  make(map[uint32]*syncState),
		ctx:    ctx,
		cancel: cancel,
	}
	c.accept.Store(cfg.AcceptNewPeers)

	control.RegisterHandler(func(b []byte, addr net.Addr) {
		c.handleDatagram(RoleControl, addr, b)
	})
	data.RegisterHandler(func(b []byte, addr net.Addr) {
		c.handleDatagram(RoleData, addr, b)
	})

	logrus.WithFields(logrus.Fields{
		"function":   "NewController",
		"name":       cfg.Name,
		"ssrc":       rtpSession.SSRC(),
		"control":    control.LocalAddr(),
		"rtp":        data.LocalAddr(),
		"accept_new": cfg.AcceptNewPeers,
	}).Info("AppleMIDI controller created")

	return c, nil
}

// SetTimeProvider replaces the wall clock used for sync timeouts.
// Pass nil to restore the default.
func (c *Controller) SetTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = tp
}

// SSRC returns the local RTP synchronization source.
func (c *Controller) SSRC() uint32 { return c.rtp.SSRC() }

// Token returns the initiator token used for outbound invitations.
func (c *Controller) Token() uint32 { return c.token }

// SetAcceptNewPeers changes whether inbound invitations are accepted.
func (c *Controller) SetAcceptNewPeers(accept bool) {
	c.accept.Store(accept)
}

// OnMIDI sets the handler for MIDI received from peers. The handler runs on
// the receive goroutine without the controller lock held.
func (c *Controller) OnMIDI(handler MIDIHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMIDI = handler
}

// PeerSSRCs returns the SSRCs of all registered peers in table order.
func (c *Controller) PeerSSRCs() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	peers := c.rtp.Peers()
	out := make([]uint32, len(peers))
	for i, p := range peers {
		out[i] = p.SSRC()
	}
	return out
}

// Start launches the periodic housekeeping sweep.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.housekeepingLoop()
	})
}

// Close stops housekeeping, ends the session with every peer and closes
// both transports.
func (c *Controller) Close() error {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	for _, peer := range c.rtp.Peers() {
		if err := c.endSessionLocked(peer); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Close",
				"ssrc":     peer.SSRC(),
				"error":    err.Error(),
			}).Warn("Failed to send end session")
		}
	}
	c.closed = true
	c.mu.Unlock()

	err := errors.Join(c.data.Close(), c.control.Close())

	logrus.WithFields(logrus.Fields{
		"function": "Close",
		"ssrc":     c.rtp.SSRC(),
	}).Info("AppleMIDI controller closed")
	return err
}

// SendLocalMessages broadcasts messages to every peer as one RTP-MIDI
// packet. Unlike inbound processing it waits for the controller lock.
func (c *Controller) SendLocalMessages(messages []*midi.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.rtpmidi.Send(messages)
}

// Invite sends an invitation to the control port at addr. When the peer
// accepts, the invitation is repeated on its RTP port and, once accepted
// there too, the peer is registered and a clock sync is started.
func (c *Controller) Invite(addr net.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Invite",
		"remote_addr": addr,
		"token":       c.token,
	}).Info("Sending invitation")
	return c.sendCommand(RoleControl, addr, c.invitation())
}

// EndSession sends BY to the peer's control port and removes the peer.
func (c *Controller) EndSession(ssrc uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	peer, err := c.rtp.FindPeerBySSRC(ssrc)
	if err != nil {
		return err
	}
	return c.endSessionLocked(peer)
}

func (c *Controller) endSessionLocked(peer *rtp.Peer) error {
	cmd := &Command{
		Type: CommandEndSession,
		Session: SessionData{
			Version: ProtocolVersion,
			Token:   c.token,
			SSRC:    c.rtp.SSRC(),
			Name:    c.cfg.Name,
		},
	}
	var sendErr error
	controlAddr, err := transport.WithPortOffset(peer.Addr(), -1)
	if err != nil {
		sendErr = err
	} else {
		sendErr = c.sendCommand(RoleControl, controlAddr, cmd)
	}
	c.removePeer(peer)
	return sendErr
}

// OnDatagram processes one inbound datagram received on the socket with the
// given role. It returns ErrBusy without doing anything if the controller
// lock is held. Malformed packets are reported as errors and dropped; no
// reply is sent for them.
func (c *Controller) OnDatagram(role Role, addr net.Addr, data []byte) error {
	if err := limits.ValidateDatagram(data); err != nil {
		return err
	}
	if !c.mu.TryLock() {
		logrus.WithFields(logrus.Fields{
			"function":    "OnDatagram",
			"role":        role.String(),
			"remote_addr": addr,
			"bytes":       len(data),
		}).Warn("Controller busy, dropping datagram")
		return ErrBusy
	}

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	var (
		ssrc     uint32
		messages []*midi.Message
		err      error
	)
	if IsCommand(data) {
		err = c.processCommand(role, addr, data)
	} else if role == RoleData {
		ssrc, messages, err = c.receiveMIDI(addr, data)
	} else {
		err = ErrNotRTPMIDI
	}
	handler := c.onMIDI
	c.mu.Unlock()

	if handler != nil && len(messages) > 0 {
		handler(ssrc, messages)
	}
	return err
}

func (c *Controller) handleDatagram(role Role, addr net.Addr, data []byte) {
	if err := c.OnDatagram(role, addr, data); err != nil && !errors.Is(err, ErrBusy) {
		logrus.WithFields(logrus.Fields{
			"function":    "handleDatagram",
			"role":        role.String(),
			"remote_addr": addr,
			"error":       err.Error(),
		}).Debug("Datagram not processed")
	}
}

func (c *Controller) processCommand(role Role, addr net.Addr, data []byte) error {
	cmd, err := ParseCommand(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "processCommand",
			"role":        role.String(),
			"remote_addr": addr,
			"bytes":       len(data),
			"error":       err.Error(),
		}).Debug("Dropping malformed AppleMIDI command")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "processCommand",
		"role":        role.String(),
		"remote_addr": addr,
		"command":     cmd.String(),
	}).Debug("AppleMIDI command received")

	return c.respond(role, addr, cmd)
}

// respond applies cmd to the controller state and sends the reply, if any,
// back to addr on the socket the command arrived on.
func (c *Controller) respond(role Role, addr net.Addr, cmd *Command) error {
	switch cmd.Type {
	case CommandInvitation:
		return c.handleInvitation(role, addr, cmd)
	case CommandInvitationAccepted:
		return c.handleAccepted(role, addr, cmd)
	case CommandInvitationRejected:
		logrus.WithFields(logrus.Fields{
			"function":    "respond",
			"remote_addr": addr,
			"ssrc":        cmd.Session.SSRC,
			"name":        cmd.Session.Name,
		}).Info("Invitation rejected by peer")
		return nil
	case CommandEndSession:
		peer, err := c.rtp.FindPeerBySSRC(cmd.Session.SSRC)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "respond",
				"ssrc":     cmd.Session.SSRC,
			}).Debug("End session for unknown peer")
			return nil
		}
		logrus.WithFields(logrus.Fields{
			"function": "respond",
			"ssrc":     cmd.Session.SSRC,
			"name":     cmd.Session.Name,
		}).Info("Peer ended session")
		c.removePeer(peer)
		return nil
	case CommandSynchronization:
		_, err := c.sync(role, addr, cmd)
		return err
	case CommandReceiverFeedback:
		logrus.WithFields(logrus.Fields{
			"function": "respond",
			"ssrc":     cmd.Feedback.SSRC,
			"sequence": cmd.Feedback.Sequence >> 16,
		}).Debug("Receiver feedback received")
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Type)
	}
}

// handleInvitation accepts or rejects an inbound invitation. Only an
// invitation on the RTP port registers the inviter as a peer.
func (c *Controller) handleInvitation(role Role, addr net.Addr, cmd *Command) error {
	if role == RoleControl {
		logrus.WithFields(logrus.Fields{
			"function":    "handleInvitation",
			"remote_addr": addr,
			"ssrc":        cmd.Session.SSRC,
			"name":        cmd.Session.Name,
		}).Info("Invitation received")
	}

	reply := *cmd
	reply.Session.SSRC = c.rtp.SSRC()
	reply.Session.Name = c.cfg.Name

	if c.accept.Load() {
		reply.Type = CommandInvitationAccepted
		if role == RoleData {
			if err := c.registerPeer(cmd.Session.SSRC, addr); err != nil {
				reply.Type = CommandInvitationRejected
			}
		}
	} else {
		reply.Type = CommandInvitationRejected
	}

	return c.sendCommand(role, addr, &reply)
}

// handleAccepted continues an invitation this controller sent: acceptance on
// the control port triggers the RTP port invitation, acceptance on the RTP
// port registers the peer and starts a sync.
func (c *Controller) handleAccepted(role Role, addr net.Addr, cmd *Command) error {
	if cmd.Session.Token != c.token {
		logrus.WithFields(logrus.Fields{
			"function":    "handleAccepted",
			"remote_addr": addr,
			"token":       cmd.Session.Token,
		}).Debug("Ignoring acceptance with foreign token")
		return nil
	}

	if role == RoleControl {
		rtpAddr, err := transport.WithPortOffset(addr, 1)
		if err != nil {
			return err
		}
		return c.sendCommand(RoleData, rtpAddr, c.invitation())
	}

	if err := c.registerPeer(cmd.Session.SSRC, addr); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function": "handleAccepted",
		"ssrc":     cmd.Session.SSRC,
		"name":     cmd.Session.Name,
	}).Info("Invitation accepted by peer")

	peer, err := c.rtp.FindPeerBySSRC(cmd.Session.SSRC)
	if err != nil {
		return err
	}
	_, err = c.startSync(peer)
	return err
}

// registerPeer adds a peer, replacing a previous registration of the same
// SSRC.
func (c *Controller) registerPeer(ssrc uint32, addr net.Addr) error {
	if old, err := c.rtp.FindPeerBySSRC(ssrc); err == nil {
		c.removePeer(old)
	}
	if err := c.rtp.AddPeer(rtp.NewPeer(ssrc, addr)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "registerPeer",
			"ssrc":        ssrc,
			"remote_addr": addr,
			"error":       err.Error(),
		}).Warn("Failed to register peer")
		return err
	}
	return nil
}

func (c *Controller) removePeer(peer *rtp.Peer) {
	if err := c.rtp.RemovePeer(peer); err != nil {
		return
	}
	delete(c.syncs, peer.SSRC())
	if c.cursor == peer {
		c.cursor = nil
	}
}

// receiveMIDI decodes an RTP-MIDI packet from a registered peer.
func (c *Controller) receiveMIDI(addr net.Addr, data []byte) (uint32, []*midi.Message, error) {
	pkt, messages, err := rtpmidi.ParsePacket(data)
	if pkt == nil {
		return 0, nil, err
	}

	peer, findErr := c.rtp.FindPeerBySSRC(pkt.SSRC)
	if findErr != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "receiveMIDI",
			"remote_addr": addr,
			"ssrc":        pkt.SSRC,
		}).Debug("RTP-MIDI packet from unknown peer")
		return 0, nil, fmt.Errorf("%w: ssrc 0x%08x", ErrUnknownPeer, pkt.SSRC)
	}
	peer.UpdateInbound(pkt.SequenceNumber, pkt.Timestamp)

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "receiveMIDI",
			"ssrc":     pkt.SSRC,
			"decoded":  len(messages),
			"error":    err.Error(),
		}).Debug("RTP-MIDI payload partially decoded")
	}
	return pkt.SSRC, messages, err
}

func (c *Controller) invitation() *Command {
	return &Command{
		Type: CommandInvitation,
		Session: SessionData{
			Version: ProtocolVersion,
			Token:   c.token,
			SSRC:    c.rtp.SSRC(),
			Name:    c.cfg.Name,
		},
	}
}

func (c *Controller) transportFor(role Role) transport.Transport {
	if role == RoleData {
		return c.data
	}
	return c.control
}

// sendCommand composes cmd and writes it to addr on the socket for role.
func (c *Controller) sendCommand(role Role, addr net.Addr, cmd *Command) error {
	data, err := cmd.MarshalBinary()
	if err != nil {
		return err
	}
	n, err := c.transportFor(role).WriteTo(data, addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "sendCommand",
			"role":        role.String(),
			"remote_addr": addr,
			"command":     cmd.Type.String(),
			"error":       err.Error(),
		}).Warn("Failed to send AppleMIDI command")
		return fmt.Errorf("send %s to %v: %w", cmd.Type, addr, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: %s wrote %d of %d bytes", ErrShortWrite, cmd.Type, n, len(data))
	}
	return nil
}

func (c *Controller) housekeepingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HousekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.Housekeep(); err != nil && !errors.Is(err, ErrBusy) {
				logrus.WithFields(logrus.Fields{
					"function": "housekeepingLoop",
					"error":    err.Error(),
				}).Debug("Housekeeping tick failed")
			}
		}
	}
}
