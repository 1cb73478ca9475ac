// Package rtpmidid implements an RTP-MIDI network endpoint.
//
// A Node announces itself under a session name, accepts AppleMIDI
// invitations from other endpoints (macOS Network MIDI, rtpMIDI and
// similar), keeps their clocks synchronized and exchanges MIDI with them over
// RTP. It listens on two UDP ports: the control port and the RTP port one
// above it.
//
// # Getting Started
//
//	options := rtpmidid.NewOptions()
//	options.Name = "Studio"
//
//	node, err := rtpmidid.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Kill()
//
//	node.OnMIDI(func(ssrc uint32, msgs []*midi.Message) {
//	    for _, m := range msgs {
//	        fmt.Printf("0x%08x: %v\n", ssrc, m)
//	    }
//	})
//
//	// Connect to a remote session
//	if err := node.Invite(ctx, "192.168.1.20:5004"); err != nil {
//	    log.Fatal(err)
//	}
//
//	node.SendNoteOn(0, 60, 100)
//
// # Package Layout
//
//   - applemidi: session commands, invitation handling, clock sync and
//     housekeeping
//   - rtp: RTP packet assembly and the peer table
//   - rtpmidi: the RTP-MIDI payload format
//   - midi: MIDI messages and the running status codec
//   - clock: the media clock
//   - transport: UDP sockets
//   - limits: packet size limits
//
// All packages log through logrus with structured fields.
package rtpmidid
