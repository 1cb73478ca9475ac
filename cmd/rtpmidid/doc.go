// Package main provides the rtpmidid command.
//
// # Overview
//
// rtpmidid runs one RTP-MIDI endpoint: it binds the AppleMIDI control port
// and the RTP port above it, accepts invitations, keeps peer clocks
// synchronized and logs all MIDI received until interrupted.
//
// # Usage
//
// Run with default settings:
//
//	go run ./cmd/rtpmidid
//
// Join a remote session:
//
//	go run ./cmd/rtpmidid -name Studio -invite 192.168.1.20:5004
//
// # Configuration Options
//
//   - -name: Session name (default: rtpmidid, env RTPMIDID_NAME)
//   - -port: Control port (default: 5008, env RTPMIDID_PORT)
//   - -bind: Bind address (default: 0.0.0.0)
//   - -accept: Accept new peers (default: true)
//   - -housekeeping: Sync sweep interval (default: 1.5s)
//   - -sync-timeout: Sync retry timeout (default: 10s)
//   - -log-level: debug, info, warn or error (default: info, env RTPMIDID_LOG_LEVEL)
//   - -invite: host:port of a remote control port to invite on startup
package main
