// Package clock provides the monotonic timestamp source used by the AppleMIDI
// session controller and the RTP-MIDI packetizer.
//
// A Clock converts raw ticks of a TickSource into an integer timestamp at a
// configurable sampling rate. AppleMIDI uses a 10 kHz rate (100 microsecond
// units) for its synchronization timestamps:
//
//	clk := clock.Provide(10000)
//	now := clk.Now() // 0 at creation, counts up 10000 per second
//
// Provide shares one process-wide clock between callers that ask for the
// same rate and hands out private clocks for any other rate. Tests inject a
// deterministic TickSource with NewWithSource.
package clock
