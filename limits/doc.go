// Package limits provides centralized wire size constants and validation
// functions for the AppleMIDI session protocol and RTP-MIDI data packets.
//
// # Size Hierarchy
//
//   - Session commands (IN, OK, NO, BY) are at least MinSessionCommand (16)
//     bytes and carry a name of at most MaxSessionName (63) characters.
//
//   - Synchronization commands are exactly SyncCommandSize (36) bytes and
//     receiver feedback commands exactly FeedbackCommandSize (12) bytes.
//
//   - Outbound RTP packets are assembled in a MaxRTPPacket (512) byte buffer.
//
//   - Inbound datagrams larger than MaxDatagram are rejected before parsing.
//
// # Validation Functions
//
//	if err := limits.ValidateDatagram(data); err != nil {
//	    // drop the datagram (ErrMessageEmpty or ErrMessageTooLarge)
//	}
//
// Composed session commands are checked against MaxSessionCommand with the
// generic ValidateMessageSize function.
package limits
