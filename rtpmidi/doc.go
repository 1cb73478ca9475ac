// Package rtpmidi implements the RTP-MIDI payload format on top of package
// rtp.
//
// A payload starts with a command section header holding the B, J, Z and P
// flags and the section length, 4 bits in a one byte header or 12 bits when
// B is set. The MIDI list follows: every command except possibly the first
// is preceded by a variable length delta time, and status bytes are elided
// with running status.
//
// Session.Send broadcasts one encoded payload to every peer of the RTP
// session. Recovery journals are neither produced nor interpreted.
package rtpmidi
