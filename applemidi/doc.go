// Package applemidi implements the AppleMIDI session protocol used by
// RTP-MIDI endpoints.
//
// Every endpoint listens on two UDP ports: a control port and an RTP port
// one above it. Session commands start with the 0xFFFF signature and a two
// letter tag:
//
//	IN  invitation            OK  invitation accepted
//	NO  invitation rejected   BY  end session
//	CK  clock synchronization RS  receiver feedback
//
// A peer is registered once its invitation arrives on the RTP port. Clock
// synchronization is a three packet exchange; each side derives the offset
// between its media clock and the peer's and stores it on the peer.
//
// Controller ties the protocol to two transports:
//
//	c, err := applemidi.NewController(applemidi.DefaultConfig(), control, data, clock.Provide(10000))
//	if err != nil {
//		return err
//	}
//	c.OnMIDI(func(ssrc uint32, msgs []*midi.Message) { ... })
//	c.Start()
//	defer c.Close()
//
// Inbound datagrams and housekeeping ticks that find the controller busy are
// dropped rather than queued.
package applemidi
