package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/rtpmidid/limits"
	"github.com/sirupsen/logrus"
)

const readTimeout = 100 * time.Millisecond

// UDPTransport implements Transport on a UDP socket.
type UDPTransport struct {
	conn       net.PacketConn
	listenAddr net.Addr
	handler    DatagramHandler
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
}

// Option configures a UDP transport.
type Option func(*udpConfig)

type udpConfig struct {
	reuseAddress bool
}

// WithReuseAddress sets SO_REUSEADDR on the socket before binding.
func WithReuseAddress(enabled bool) Option {
	return func(c *udpConfig) { c.reuseAddress = enabled }
}

// NewUDPTransport creates a new UDP transport listening on listenAddr and
// starts its receive loop.
func NewUDPTransport(listenAddr string, opts ...Option) (*UDPTransport, error) {
	cfg := udpConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	lc := net.ListenConfig{}
	if cfg.reuseAddress {
		lc.Control = reuseAddrControl
	}

	conn, err := lc.ListenPacket(context.Background(), "udp", listenAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "NewUDPTransport",
			"listen_addr": listenAddr,
			"error":       err.Error(),
		}).Error("Failed to bind UDP socket")
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	transport := &UDPTransport{
		conn:       conn,
		listenAddr: conn.LocalAddr(),
		ctx:        ctx,
		cancel:     cancel,
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewUDPTransport",
		"local_addr": transport.listenAddr.String(),
		"reuse_addr": cfg.reuseAddress,
	}).Debug("UDP transport listening")

	go transport.processPackets()

	return transport, nil
}

// RegisterHandler sets the handler for inbound datagrams.
func (t *UDPTransport) RegisterHandler(handler DatagramHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
}

// WriteTo sends b to addr.
func (t *UDPTransport) WriteTo(b []byte, addr net.Addr) (int, error) {
	if t.ctx.Err() != nil {
		return 0, ErrClosed
	}
	return t.conn.WriteTo(b, addr)
}

// Close shuts down the transport. It is safe to call more than once.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.conn.Close()
	})
	return err
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.listenAddr
}

// processPackets reads datagrams until the transport is closed.
func (t *UDPTransport) processPackets() {
	buffer := make([]byte, limits.MaxDatagram+1)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			t.processIncomingPacket(buffer)
		}
	}
}

// processIncomingPacket reads and dispatches a single datagram.
func (t *UDPTransport) processIncomingPacket(buffer []byte) {
	data, addr, err := t.readPacketData(buffer)
	if err != nil {
		return
	}

	if err := limits.ValidateDatagram(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "processIncomingPacket",
			"remote_addr": addr.String(),
			"error":       err.Error(),
		}).Debug("Dropping datagram")
		return
	}

	t.dispatch(data, addr)
}

// readPacketData reads data from the connection with timeout handling.
func (t *UDPTransport) readPacketData(buffer []byte) ([]byte, net.Addr, error) {
	_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))

	n, addr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		return nil, nil, t.handleReadError(err)
	}

	return buffer[:n], addr, nil
}

// handleReadError logs read errors other than deadline expiry and shutdown.
func (t *UDPTransport) handleReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return err
	}
	if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function":   "handleReadError",
		"local_addr": t.listenAddr.String(),
		"error":      err.Error(),
	}).Warn("UDP read failed")
	return err
}

// dispatch hands a copy of data to the registered handler. Datagrams are
// delivered in arrival order on the receive goroutine.
func (t *UDPTransport) dispatch(data []byte, addr net.Addr) {
	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	if handler == nil {
		return
	}
	packet := make([]byte, len(data))
	copy(packet, data)
	handler(packet, addr)
}
