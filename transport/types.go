package transport

import (
	"errors"
	"net"
)

// DatagramHandler processes one inbound datagram. data is owned by the
// handler.
type DatagramHandler func(data []byte, addr net.Addr)

// Transport defines the datagram socket abstraction used by the AppleMIDI
// controller. The control and RTP ports are each served by one Transport.
type Transport interface {
	// WriteTo sends b to addr and returns the number of bytes written.
	WriteTo(b []byte, addr net.Addr) (int, error)

	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the local address the transport is listening on.
	LocalAddr() net.Addr

	// RegisterHandler sets the handler inbound datagrams are passed to.
	RegisterHandler(handler DatagramHandler)
}

var (
	// ErrClosed indicates an operation on a closed transport.
	ErrClosed = errors.New("transport closed")

	// ErrUnsupportedAddress indicates an address type other than UDP.
	ErrUnsupportedAddress = errors.New("unsupported address type")
)
