// Package rtp implements the RTP session used to carry RTP-MIDI data.
//
// A Session owns a fixed size, open addressed peer table keyed by SSRC. A
// peer lands in slot (ssrc mod MaxPeers), probing linearly on collision.
// NextPeer walks the table in slot order and is used both for round robin
// housekeeping and for broadcasting one packet to every peer:
//
//	var peer *rtp.Peer
//	for {
//	    peer, err = session.NextPeer(peer)
//	    if err != nil || peer == nil {
//	        break
//	    }
//	    info := session.NewPacketInfo(peer)
//	    info.Payload = [][]byte{payload}
//	    err = session.SendPacket(info)
//	}
//
// The fixed header is encoded with github.com/pion/rtp. Header extension and
// padding are appended by SendPacket, which transmits the assembled packet
// with a single WriteTo call. A peer's outbound sequence number advances
// only after a complete write.
//
// Sessions are not safe for concurrent use; the AppleMIDI controller
// serializes access under its lock.
package rtp
