package applemidi

import (
	"net"
	"time"

	"github.com/opd-ai/rtpmidid/rtp"
	"github.com/sirupsen/logrus"
)

type syncStage uint8

const (
	syncInitiated syncStage = iota + 1
	syncResponding
)

func (s syncStage) String() string {
	switch s {
	case syncInitiated:
		return "initiated"
	case syncResponding:
		return "responding"
	}
	return "idle"
}

// syncState tracks an outstanding clock exchange with one peer.
type syncState struct {
	stage   syncStage
	started time.Time
}

func (c *Controller) markSync(ssrc uint32, stage syncStage) {
	c.syncs[ssrc] = &syncState{stage: stage, started: c.time.Now()}
}

func (c *Controller) clearSync(ssrc uint32) {
	delete(c.syncs, ssrc)
}

// syncInProgress reports whether an exchange with ssrc is outstanding.
// Exchanges older than the sync timeout are discarded.
func (c *Controller) syncInProgress(ssrc uint32) bool {
	st, ok := c.syncs[ssrc]
	if !ok {
		return false
	}
	if c.time.Since(st.started) >= c.cfg.SyncTimeout {
		logrus.WithFields(logrus.Fields{
			"function": "syncInProgress",
			"ssrc":     ssrc,
			"stage":    st.stage.String(),
		}).Debug("Sync exchange timed out")
		delete(c.syncs, ssrc)
		return false
	}
	return true
}

// startSync begins a fresh three way clock exchange with peer.
func (c *Controller) startSync(peer *rtp.Peer) (bool, error) {
	c.markSync(peer.SSRC(), syncInitiated)
	cmd := &Command{
		Type: CommandSynchronization,
		Sync: SyncData{SSRC: c.rtp.SSRC(), Count: 3},
	}
	return c.sync(RoleData, peer.Addr(), cmd)
}

// sync advances the clock exchange carried by cmd and sends the next stage
// to addr on the socket for role. It reports whether a packet was sent.
//
// A command that is not CK, carries our own SSRC or has a count above 2
// starts a new exchange at count 0. Count 0 is answered with count 1, count
// 1 yields an offset estimate and is answered with count 2, and count 2
// yields the responder's estimate and ends the exchange.
func (c *Controller) sync(role Role, addr net.Addr, cmd *Command) (bool, error) {
	own := c.rtp.SSRC()
	now := c.clock.Now()

	if cmd.Type != CommandSynchronization || cmd.Sync.SSRC == own || cmd.Sync.Count > 2 {
		if cmd.Type == CommandSynchronization && cmd.Sync.SSRC != own {
			c.markSync(cmd.Sync.SSRC, syncInitiated)
		}
		next := &Command{
			Type: CommandSynchronization,
			Sync: SyncData{
				SSRC:       own,
				Count:      0,
				Timestamps: [3]uint64{uint64(now), 0, 0},
			},
		}
		return true, c.sendCommand(role, addr, next)
	}

	remote := cmd.Sync.SSRC
	next := *cmd
	next.Sync.SSRC = own

	switch cmd.Sync.Count {
	case 0:
		next.Sync.Count = 1
		next.Sync.Timestamps[1] = uint64(now)
		c.markSync(remote, syncResponding)
		return true, c.sendCommand(role, addr, &next)

	case 1:
		t1 := int64(cmd.Sync.Timestamps[0])
		t2 := int64(cmd.Sync.Timestamps[1])
		// Timestamp 3 is not filled in yet; now is its value.
		half := (now - t1) / 2
		c.storeOffset(remote, t2+half-now)

		next.Sync.Count = 2
		next.Sync.Timestamps[2] = uint64(now)
		c.clearSync(remote)
		return true, c.sendCommand(role, addr, &next)

	default:
		t1 := int64(cmd.Sync.Timestamps[0])
		t3 := int64(cmd.Sync.Timestamps[2])
		half := (t3 - t1) / 2
		c.storeOffset(remote, t3+half-now)

		c.clearSync(remote)
		return false, nil
	}
}

func (c *Controller) storeOffset(ssrc uint32, offset int64) {
	peer, err := c.rtp.FindPeerBySSRC(ssrc)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "storeOffset",
			"ssrc":     ssrc,
			"offset":   offset,
		}).Debug("Clock offset for unregistered peer")
		return
	}
	peer.SetClockOffset(offset)
	logrus.WithFields(logrus.Fields{
		"function": "storeOffset",
		"ssrc":     ssrc,
		"offset":   offset,
	}).Debug("Clock offset updated")
}
