package rtpmidid

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rtpmidid/applemidi"
	"github.com/opd-ai/rtpmidid/clock"
	"github.com/opd-ai/rtpmidid/midi"
	"github.com/opd-ai/rtpmidid/transport"
)

// Options contains configuration options for creating a Node.
type Options struct {
	Name                 string
	Port                 uint16
	BindAddress          string
	AcceptNewPeers       bool
	HousekeepingInterval time.Duration
	SyncTimeout          time.Duration
	ClockRate            uint64
	ReuseAddress         bool
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Name:                 "rtpmidid",
		Port:                 5008,
		BindAddress:          "0.0.0.0",
		AcceptNewPeers:       true,
		HousekeepingInterval: 1500 * time.Millisecond,
		SyncTimeout:          10 * time.Second,
		ClockRate:            10000,
		ReuseAddress:         true,
	}
}

func (o *Options) controllerConfig() applemidi.Config {
	return applemidi.Config{
		Name:                 o.Name,
		AcceptNewPeers:       o.AcceptNewPeers,
		HousekeepingInterval: o.HousekeepingInterval,
		SyncTimeout:          o.SyncTimeout,
	}
}

// Node is a running RTP-MIDI endpoint: a control socket, an RTP socket and
// the AppleMIDI controller serving both.
type Node struct {
	options    *Options
	clock      *clock.Clock
	control    *transport.UDPTransport
	data       *transport.UDPTransport
	controller *applemidi.Controller

	runningMu sync.RWMutex
	running   bool
}

// New creates a Node with the given options and starts housekeeping. A nil
// options uses NewOptions. Port 0 binds the control socket to an ephemeral
// port; the RTP socket is always bound one above it.
func New(options *Options) (*Node, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.ClockRate == 0 {
		return nil, fmt.Errorf("%w: clock rate must be positive", applemidi.ErrInvalidConfig)
	}
	cfg := options.controllerConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clk := clock.Provide(options.ClockRate)

	control, data, err := bindPair(options)
	if err != nil {
		return nil, err
	}

	controller, err := applemidi.NewController(cfg, control, data, clk)
	if err != nil {
		data.Close()
		control.Close()
		return nil, err
	}
	controller.Start()

	n := &Node{
		options:    options,
		clock:      clk,
		control:    control,
		data:       data,
		controller: controller,
		running:    true,
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"name":     options.Name,
		"control":  control.LocalAddr(),
		"rtp":      data.LocalAddr(),
		"ssrc":     controller.SSRC(),
	}).Info("RTP-MIDI node started")

	return n, nil
}

// bindPair binds the control socket and then the RTP socket on the next
// port, closing the control socket if the second bind fails.
func bindPair(options *Options) (*transport.UDPTransport, *transport.UDPTransport, error) {
	opts := []transport.Option{transport.WithReuseAddress(options.ReuseAddress)}

	controlAddr := net.JoinHostPort(options.BindAddress, strconv.Itoa(int(options.Port)))
	control, err := transport.NewUDPTransport(controlAddr, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("bind control port: %w", err)
	}

	udp, ok := control.LocalAddr().(*net.UDPAddr)
	if !ok || udp.Port >= 0xffff {
		control.Close()
		return nil, nil, fmt.Errorf("no rtp port above control address %v", control.LocalAddr())
	}
	dataAddr := net.JoinHostPort(options.BindAddress, strconv.Itoa(udp.Port+1))
	data, err := transport.NewUDPTransport(dataAddr, opts...)
	if err != nil {
		control.Close()
		return nil, nil, fmt.Errorf("bind rtp port: %w", err)
	}
	return control, data, nil
}

// Kill ends every session, stops housekeeping and closes both sockets.
func (n *Node) Kill() {
	n.runningMu.Lock()
	if !n.running {
		n.runningMu.Unlock()
		return
	}
	n.running = false
	n.runningMu.Unlock()

	if err := n.controller.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Kill",
			"error":    err.Error(),
		}).Warn("Error closing controller")
	}
}

// IsRunning reports whether the node has not been killed.
func (n *Node) IsRunning() bool {
	n.runningMu.RLock()
	defer n.runningMu.RUnlock()
	return n.running
}

// OnMIDI sets the callback for MIDI received from peers.
func (n *Node) OnMIDI(handler applemidi.MIDIHandler) {
	n.controller.OnMIDI(handler)
}

// SendMessages broadcasts messages to every connected peer.
func (n *Node) SendMessages(messages ...*midi.Message) error {
	return n.controller.SendLocalMessages(messages)
}

// SendNoteOn broadcasts a Note On stamped with the current clock reading.
func (n *Node) SendNoteOn(channel, key, velocity uint8) error {
	msg, err := midi.NewNoteOn(channel, key, velocity, n.clock.Now())
	if err != nil {
		return err
	}
	return n.SendMessages(msg)
}

// SendNoteOff broadcasts a Note Off stamped with the current clock reading.
func (n *Node) SendNoteOff(channel, key, velocity uint8) error {
	msg, err := midi.NewNoteOff(channel, key, velocity, n.clock.Now())
	if err != nil {
		return err
	}
	return n.SendMessages(msg)
}

// Invite invites the endpoint whose control port is at hostport.
func (n *Node) Invite(ctx context.Context, hostport string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, err := transport.ResolveUDPAddr(hostport)
	if err != nil {
		return err
	}
	return n.controller.Invite(addr)
}

// EndSession ends the session with the peer identified by ssrc.
func (n *Node) EndSession(ssrc uint32) error {
	return n.controller.EndSession(ssrc)
}

// Peers returns the SSRCs of the connected peers.
func (n *Node) Peers() []uint32 {
	return n.controller.PeerSSRCs()
}

// SetAcceptNewPeers changes whether inbound invitations are accepted.
func (n *Node) SetAcceptNewPeers(accept bool) {
	n.controller.SetAcceptNewPeers(accept)
}

// SSRC returns the node's RTP synchronization source.
func (n *Node) SSRC() uint32 { return n.controller.SSRC() }

// Name returns the announced session name.
func (n *Node) Name() string { return n.options.Name }

// ControlAddr returns the bound control socket address.
func (n *Node) ControlAddr() net.Addr { return n.control.LocalAddr() }

// DataAddr returns the bound RTP socket address.
func (n *Node) DataAddr() net.Addr { return n.data.LocalAddr() }
