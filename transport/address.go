package transport

import (
	"fmt"
	"net"
)

// WithPortOffset returns a copy of addr with its port moved by delta. It maps
// an AppleMIDI control address to the RTP address (delta 1) and back.
func WithPortOffset(addr net.Addr, delta int) (net.Addr, error) {
	udp, ok := addr.(*net.UDPAddr)
	if !ok || udp == nil {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAddress, addr)
	}
	port := udp.Port + delta
	if port <= 0 || port > 0xffff {
		return nil, fmt.Errorf("port %d out of range", port)
	}
	out := *udp
	out.IP = append(net.IP(nil), udp.IP...)
	out.Port = port
	return &out, nil
}

// ResolveUDPAddr resolves a host:port string to a UDP address.
func ResolveUDPAddr(hostport string) (net.Addr, error) {
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", hostport, err)
	}
	return addr, nil
}
