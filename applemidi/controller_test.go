package applemidi

import (
	"errors"
	"testing"
	"time"

	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/rtpmidid/midi"
	"github.com/opd-ai/rtpmidid/rtp"
)

func (tc *testController) addPeer(t *testing.T, ssrc uint32, rtpPort int) *rtp.Peer {
	t.Helper()
	p := rtp.NewPeer(ssrc, udpAddr(rtpPort))
	require.NoError(t, tc.rtp.AddPeer(p))
	return p
}

func syncCmd(ssrc uint32, count uint8, ts ...uint64) []byte {
	cmd := &Command{Type: CommandSynchronization, Sync: SyncData{SSRC: ssrc, Count: count}}
	copy(cmd.Sync.Timestamps[:], ts)
	b, _ := cmd.MarshalBinary()
	return b
}

func sessionCmd(tag CommandType, token, ssrc uint32, name string) []byte {
	cmd := &Command{
		Type:    tag,
		Session: SessionData{Version: ProtocolVersion, Token: token, SSRC: ssrc, Name: name},
	}
	b, _ := cmd.MarshalBinary()
	return b
}

func TestNewController_Validation(t *testing.T) {
	clk := newStepClock(0)
	ctrl, data := NewMockTransport(5004), NewMockTransport(5005)

	_, err := NewController(DefaultConfig(), nil, data, clk)
	assert.Error(t, err)

	_, err = NewController(DefaultConfig(), ctrl, data, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.SyncTimeout = 0
	_, err = NewController(cfg, ctrl, data, clk)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c, err := NewController(DefaultConfig(), ctrl, data, clk)
	require.NoError(t, err)
	assert.NotNil(t, ctrl.handler)
	assert.NotNil(t, data.handler)
	assert.Equal(t, uint32(0)^c.SSRC(), c.Token())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty name", func(c *Config) { c.Name = "" }, false},
		{"name too long", func(c *Config) { c.Name = string(make([]byte, 64)) }, true},
		{"zero housekeeping", func(c *Config) { c.HousekeepingInterval = 0 }, true},
		{"negative timeout", func(c *Config) { c.SyncTimeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSync_Stages(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	peer := tc.addPeer(t, 0x42, 6005)
	from := peer.Addr()
	own := tc.SSRC()

	// Count 0 is answered with count 1 carrying our time as ts2.
	tc.clock.Set(5000)
	require.NoError(t, tc.OnDatagram(RoleData, from, syncCmd(0x42, 0, 100)))
	sent := tc.data.Take()
	require.Len(t, sent, 1)
	assert.Equal(t, from, sent[0].addr)
	reply := mustParse(t, sent[0].data)
	assert.Equal(t, uint8(1), reply.Sync.Count)
	assert.Equal(t, own, reply.Sync.SSRC)
	assert.Equal(t, [3]uint64{100, 5000, 0}, reply.Sync.Timestamps)
	assert.True(t, tc.syncInProgress(0x42))

	// Count 1 produces an offset and is answered with count 2.
	tc.clock.Set(1100)
	require.NoError(t, tc.OnDatagram(RoleData, from, syncCmd(0x42, 1, 1000, 5000)))
	sent = tc.data.Take()
	require.Len(t, sent, 1)
	reply = mustParse(t, sent[0].data)
	assert.Equal(t, uint8(2), reply.Sync.Count)
	assert.Equal(t, [3]uint64{1000, 5000, 1100}, reply.Sync.Timestamps)
	assert.Equal(t, int64(5000+50-1100), peer.ClockOffset())
	assert.False(t, tc.syncInProgress(0x42))

	// Count 2 ends the exchange without a reply.
	tc.clock.Set(2000)
	require.NoError(t, tc.OnDatagram(RoleData, from, syncCmd(0x42, 2, 1000, 1500, 1200)))
	assert.Empty(t, tc.data.Take())
	assert.Equal(t, int64(1200+100-2000), peer.ClockOffset())
}

func TestSync_RestartsExchange(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	from := udpAddr(6005)

	tests := []struct {
		name string
		data []byte
	}{
		{"count above two", syncCmd(0x42, 5, 1, 2, 3)},
		{"own ssrc", syncCmd(tc.SSRC(), 1, 1, 2, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc.clock.Set(777)
			require.NoError(t, tc.OnDatagram(RoleControl, from, tt.data))
			sent := tc.control.Take()
			require.Len(t, sent, 1)
			reply := mustParse(t, sent[0].data)
			assert.Equal(t, uint8(0), reply.Sync.Count)
			assert.Equal(t, tc.SSRC(), reply.Sync.SSRC)
			assert.Equal(t, [3]uint64{777, 0, 0}, reply.Sync.Timestamps)
		})
	}
}

func TestSync_TwoControllers(t *testing.T) {
	a := newTestController(t, DefaultConfig())
	b := newTestController(t, DefaultConfig())
	a.clock.Set(1000)
	b.clock.Set(5000)

	bAtA := a.addPeer(t, b.SSRC(), 7005)
	aAtB := b.addPeer(t, a.SSRC(), 6005)

	sent, err := a.startSync(bAtA)
	require.NoError(t, err)
	require.True(t, sent)

	// Relay each packet to the other side until the exchange ends.
	from, to := a, b
	for i := 0; i < 3; i++ {
		pkts := from.data.Take()
		if len(pkts) == 0 {
			break
		}
		require.Len(t, pkts, 1)
		require.NoError(t, to.OnDatagram(RoleData, udpAddr(6005), pkts[0].data))
		from, to = to, from
	}

	assert.Empty(t, a.data.Take())
	assert.Empty(t, b.data.Take())
	assert.Equal(t, int64(4000), bAtA.ClockOffset())
	assert.Equal(t, int64(-4000), aAtB.ClockOffset())
	assert.False(t, a.syncInProgress(b.SSRC()))
	assert.False(t, b.syncInProgress(a.SSRC()))
}

func TestInvitation_Accepted(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	const remote = 0x1234

	// Control port: OK, no peer yet.
	require.NoError(t, tc.OnDatagram(RoleControl, udpAddr(6004), sessionCmd(CommandInvitation, 99, remote, "Remote")))
	sent := tc.control.Take()
	require.Len(t, sent, 1)
	assert.Equal(t, udpAddr(6004), sent[0].addr)
	reply := mustParse(t, sent[0].data)
	assert.Equal(t, CommandInvitationAccepted, reply.Type)
	assert.Equal(t, uint32(99), reply.Session.Token)
	assert.Equal(t, tc.SSRC(), reply.Session.SSRC)
	assert.Equal(t, "rtpmidid", reply.Session.Name)
	assert.Empty(t, tc.PeerSSRCs())

	// RTP port: OK on the RTP socket, peer registered.
	require.NoError(t, tc.OnDatagram(RoleData, udpAddr(6005), sessionCmd(CommandInvitation, 99, remote, "Remote")))
	sent = tc.data.Take()
	require.Len(t, sent, 1)
	assert.Equal(t, CommandInvitationAccepted, mustParse(t, sent[0].data).Type)
	assert.Empty(t, tc.control.Take())

	peer, err := tc.rtp.NextPeer(nil)
	require.NoError(t, err)
	require.NotNil(t, peer)
	assert.Equal(t, uint32(remote), peer.SSRC())
	assert.Equal(t, udpAddr(6005).String(), peer.Addr().String())

	// End session removes it.
	require.NoError(t, tc.OnDatagram(RoleControl, udpAddr(6004), sessionCmd(CommandEndSession, 99, remote, "")))
	assert.Empty(t, tc.PeerSSRCs())
	assert.Empty(t, tc.control.Take())
}

func TestInvitation_ReinviteReplacesPeer(t *testing.T) {
	tc := newTestController(t, DefaultConfig())

	require.NoError(t, tc.OnDatagram(RoleData, udpAddr(6005), sessionCmd(CommandInvitation, 1, 0x77, "")))
	require.NoError(t, tc.OnDatagram(RoleData, udpAddr(8005), sessionCmd(CommandInvitation, 2, 0x77, "")))

	assert.Equal(t, []uint32{0x77}, tc.PeerSSRCs())
	peer, err := tc.rtp.FindPeerBySSRC(0x77)
	require.NoError(t, err)
	assert.Equal(t, udpAddr(8005).String(), peer.Addr().String())
}

func TestInvitation_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		setup func(tc *testController, t *testing.T)
	}{
		{"not accepting", func(tc *testController, t *testing.T) { tc.SetAcceptNewPeers(false) }},
		{"table full", func(tc *testController, t *testing.T) {
			for i := 0; i < rtp.MaxPeers; i++ {
				tc.addPeer(t, uint32(1000+i), 7000+2*i)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestController(t, DefaultConfig())
			tt.setup(tc, t)
			before := len(tc.PeerSSRCs())

			require.NoError(t, tc.OnDatagram(RoleData, udpAddr(6005), sessionCmd(CommandInvitation, 5, 0x99, "x")))
			sent := tc.data.Take()
			require.Len(t, sent, 1)
			reply := mustParse(t, sent[0].data)
			assert.Equal(t, CommandInvitationRejected, reply.Type)
			assert.Equal(t, uint32(5), reply.Session.Token)
			assert.Len(t, tc.PeerSSRCs(), before)
			assert.NotContains(t, tc.PeerSSRCs(), uint32(0x99))
		})
	}
}

func TestInvite_Outbound(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	const remote = 0x5151

	require.NoError(t, tc.Invite(udpAddr(6004)))
	sent := tc.control.Take()
	require.Len(t, sent, 1)
	inv := mustParse(t, sent[0].data)
	assert.Equal(t, CommandInvitation, inv.Type)
	assert.Equal(t, tc.Token(), inv.Session.Token)
	assert.Equal(t, ProtocolVersion, inv.Session.Version)

	// A foreign token is ignored.
	require.NoError(t, tc.OnDatagram(RoleControl, udpAddr(6004), sessionCmd(CommandInvitationAccepted, tc.Token()+1, remote, "")))
	assert.Empty(t, tc.control.Take())
	assert.Empty(t, tc.data.Take())

	// Control acceptance repeats the invitation on the RTP port.
	require.NoError(t, tc.OnDatagram(RoleControl, udpAddr(6004), sessionCmd(CommandInvitationAccepted, tc.Token(), remote, "Remote")))
	sent = tc.data.Take()
	require.Len(t, sent, 1)
	assert.Equal(t, udpAddr(6005).String(), sent[0].addr.String())
	assert.Equal(t, CommandInvitation, mustParse(t, sent[0].data).Type)
	assert.Empty(t, tc.PeerSSRCs())

	// RTP acceptance registers the peer and starts a sync.
	tc.clock.Set(4242)
	require.NoError(t, tc.OnDatagram(RoleData, udpAddr(6005), sessionCmd(CommandInvitationAccepted, tc.Token(), remote, "Remote")))
	assert.Equal(t, []uint32{remote}, tc.PeerSSRCs())
	sent = tc.data.Take()
	require.Len(t, sent, 1)
	ck := mustParse(t, sent[0].data)
	assert.Equal(t, CommandSynchronization, ck.Type)
	assert.Equal(t, uint8(0), ck.Sync.Count)
	assert.Equal(t, uint64(4242), ck.Sync.Timestamps[0])
	assert.True(t, tc.syncInProgress(remote))
}

func TestOnDatagram_Malformed(t *testing.T) {
	ck20 := syncCmd(1, 0)[:20]

	tests := []struct {
		name    string
		role    Role
		data    []byte
		wantErr error
	}{
		{"three bytes on control", RoleControl, []byte{1, 2, 3}, ErrNotRTPMIDI},
		{"short sync on control", RoleControl, ck20, ErrBadLength},
		{"short sync on rtp", RoleData, ck20, ErrBadLength},
		{"three bytes on rtp", RoleData, []byte{1, 2, 3}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestController(t, DefaultConfig())
			err := tc.OnDatagram(tt.role, udpAddr(6005), tt.data)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Empty(t, tc.control.Take())
			assert.Empty(t, tc.data.Take())
		})
	}
}

func TestOnDatagram_Busy(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	tc.addPeer(t, 0x42, 6005)

	tc.mu.Lock()
	err := tc.OnDatagram(RoleData, udpAddr(6005), syncCmd(0x42, 0, 1))
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, tc.Housekeep(), ErrBusy)
	tc.mu.Unlock()

	assert.Empty(t, tc.data.Take())
	assert.NoError(t, tc.OnDatagram(RoleData, udpAddr(6005), syncCmd(0x42, 0, 1)))
}

func midiPacket(t *testing.T, ssrc uint32, seq uint16, payload []byte) []byte {
	t.Helper()
	pkt := &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			PayloadType:    97,
			SequenceNumber: seq,
			Timestamp:      100,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	return b
}

func TestOnDatagram_MIDI(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	peer := tc.addPeer(t, 0x42, 6005)

	var (
		gotSSRC uint32
		got     []*midi.Message
	)
	tc.OnMIDI(func(ssrc uint32, messages []*midi.Message) {
		gotSSRC = ssrc
		got = messages
		// Sending from the handler must not deadlock.
		assert.NoError(t, tc.SendLocalMessages(messages))
	})

	require.NoError(t, tc.OnDatagram(RoleData, peer.Addr(), midiPacket(t, 0x42, 7, []byte{0x03, 0x90, 60, 100})))
	assert.Equal(t, uint32(0x42), gotSSRC)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{0x90, 60, 100}, got[0].Bytes())
	assert.Equal(t, uint16(7), peer.InSeqnum())
	assert.Len(t, tc.data.Take(), 1)

	// Unknown SSRCs are dropped.
	got = nil
	err := tc.OnDatagram(RoleData, peer.Addr(), midiPacket(t, 0x43, 8, []byte{0x03, 0x90, 60, 100}))
	assert.ErrorIs(t, err, ErrUnknownPeer)
	assert.Nil(t, got)
}

func TestHousekeep_RoundRobin(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	p1 := tc.addPeer(t, 1, 6005)
	p2 := tc.addPeer(t, 2, 7005)

	ckTo := func() []string {
		var out []string
		for _, d := range tc.data.Take() {
			require.Equal(t, CommandSynchronization, mustParse(t, d.data).Type)
			out = append(out, d.addr.String())
		}
		return out
	}

	require.NoError(t, tc.Housekeep())
	assert.Equal(t, []string{p1.Addr().String()}, ckTo())
	require.NoError(t, tc.Housekeep())
	assert.Equal(t, []string{p2.Addr().String()}, ckTo())

	// End of table, then wrap to p1 whose exchange is still outstanding.
	require.NoError(t, tc.Housekeep())
	assert.Empty(t, ckTo())
	require.NoError(t, tc.Housekeep())
	assert.Empty(t, ckTo())

	// After the timeout p2 is synced again.
	tc.time.Advance(DefaultConfig().SyncTimeout)
	require.NoError(t, tc.Housekeep())
	assert.Equal(t, []string{p2.Addr().String()}, ckTo())
}

func TestHousekeep_CursorRemoved(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	p1 := tc.addPeer(t, 1, 6005)
	tc.addPeer(t, 2, 7005)

	require.NoError(t, tc.Housekeep())
	tc.data.Take()
	require.NoError(t, tc.EndSession(p1.SSRC()))
	tc.control.Take()

	require.NoError(t, tc.Housekeep())
	sent := tc.data.Take()
	require.Len(t, sent, 1)
	assert.Equal(t, udpAddr(7005).String(), sent[0].addr.String())
}

func TestHousekeep_Feedback(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	peer := tc.addPeer(t, 1, 6005)
	peer.UpdateInbound(300, 0)

	require.NoError(t, tc.Housekeep())
	sent := tc.control.Take()
	require.Len(t, sent, 1)
	assert.Equal(t, udpAddr(6004).String(), sent[0].addr.String())
	rs := mustParse(t, sent[0].data)
	assert.Equal(t, CommandReceiverFeedback, rs.Type)
	assert.Equal(t, uint32(300)<<16, rs.Feedback.Sequence)
	assert.Equal(t, tc.SSRC(), rs.Feedback.SSRC)

	_, pending := peer.PendingFeedback()
	assert.False(t, pending)
}

func TestEndSession(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	tc.addPeer(t, 0x42, 6005)

	assert.ErrorIs(t, tc.EndSession(0x43), rtp.ErrPeerNotFound)

	require.NoError(t, tc.EndSession(0x42))
	sent := tc.control.Take()
	require.Len(t, sent, 1)
	assert.Equal(t, udpAddr(6004).String(), sent[0].addr.String())
	assert.Equal(t, CommandEndSession, mustParse(t, sent[0].data).Type)
	assert.Empty(t, tc.PeerSSRCs())
}

func TestSendCommand_Failure(t *testing.T) {
	tc := newTestController(t, DefaultConfig())
	tc.control.failWith = errors.New("network unreachable")

	err := tc.Invite(udpAddr(6004))
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HousekeepingInterval = 5 * time.Millisecond
	tc := newTestController(t, cfg)
	tc.addPeer(t, 1, 6005)
	tc.addPeer(t, 2, 7005)
	tc.Start()

	require.NoError(t, tc.Close())
	assert.True(t, tc.control.IsClosed())
	assert.True(t, tc.data.IsClosed())

	var byes int
	for _, d := range tc.control.Take() {
		if mustParse(t, d.data).Type == CommandEndSession {
			byes++
		}
	}
	assert.Equal(t, 2, byes)
	assert.Empty(t, tc.PeerSSRCs())

	assert.ErrorIs(t, tc.OnDatagram(RoleData, udpAddr(6005), syncCmd(1, 0)), ErrClosed)
	assert.ErrorIs(t, tc.Invite(udpAddr(6004)), ErrClosed)
	assert.NoError(t, tc.Close())
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "control", RoleControl.String())
	assert.Equal(t, "rtp", RoleData.String())
	assert.Equal(t, "role(7)", Role(7).String())
}
