// Package transport provides the UDP datagram transport for AppleMIDI
// session control and RTP-MIDI data.
//
// An AppleMIDI endpoint listens on two consecutive ports: the control port
// and the RTP port (control + 1). Each is served by one Transport:
//
//	control, err := transport.NewUDPTransport(":5008", transport.WithReuseAddress(true))
//	data, err := transport.NewUDPTransport(":5009", transport.WithReuseAddress(true))
//	control.RegisterHandler(func(data []byte, addr net.Addr) { ... })
//
// The receive loop reads with a short deadline so Close is observed
// promptly, drops datagrams larger than limits.MaxDatagram and delivers each
// remaining datagram to the handler in arrival order.
//
// WithPortOffset converts between control and RTP addresses of a remote
// endpoint.
package transport
