// Package midi implements the MIDI message codec used by the RTP-MIDI
// payload: format detection, property access and running status encoding.
//
// Every message kind is described by a Format. DetectFormat scans a static
// table and returns the first format whose Test matches the leading status
// byte. Only Note Off (0x8n) and Note On (0x9n) are implemented; other
// channel voice and system formats are extension points of the same table.
//
// Running status lets consecutive messages that share a status byte omit it:
//
//	var rs midi.RunningStatus
//	n, _ := first.EncodeRunningStatus(&rs, buf)  // 3 bytes, rs = 0x90
//	n, _ = second.EncodeRunningStatus(&rs, buf)  // 2 bytes, status elided
//
// Property setters validate against the property's bit mask and return
// ErrValueOutOfRange instead of clamping.
package midi
