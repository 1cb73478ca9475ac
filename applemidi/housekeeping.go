package applemidi

import (
	"github.com/opd-ai/rtpmidid/rtp"
	"github.com/opd-ai/rtpmidid/transport"
	"github.com/sirupsen/logrus"
)

// Housekeep runs one step of the round robin sweep: it advances to the next
// peer, starts a clock exchange unless one is already outstanding and sends
// receiver feedback if packets arrived since the last report. Once the end
// of the peer table is reached the next call starts over from the first
// peer.
//
// Like OnDatagram it returns ErrBusy instead of waiting for the lock.
func (c *Controller) Housekeep() error {
	if !c.mu.TryLock() {
		logrus.WithFields(logrus.Fields{
			"function": "Housekeep",
		}).Warn("Controller busy, skipping housekeeping")
		return ErrBusy
	}
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	peer, err := c.rtp.NextPeer(c.cursor)
	if err != nil {
		// The cursor was removed; restart from the beginning.
		peer, err = c.rtp.NextPeer(nil)
		if err != nil {
			return err
		}
	}
	c.cursor = peer
	if peer == nil {
		return nil
	}

	var syncErr error
	if !c.syncInProgress(peer.SSRC()) {
		_, syncErr = c.startSync(peer)
	}
	c.sendFeedback(peer)
	return syncErr
}

// sendFeedback acknowledges the last received sequence number to the peer's
// control port.
func (c *Controller) sendFeedback(peer *rtp.Peer) {
	seq, pending := peer.PendingFeedback()
	if !pending {
		return
	}
	controlAddr, err := transport.WithPortOffset(peer.Addr(), -1)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendFeedback",
			"ssrc":     peer.SSRC(),
			"error":    err.Error(),
		}).Debug("No control address for peer")
		return
	}
	cmd := &Command{
		Type: CommandReceiverFeedback,
		Feedback: FeedbackData{
			SSRC:     c.rtp.SSRC(),
			Sequence: uint32(seq) << 16,
		},
	}
	if err := c.sendCommand(RoleControl, controlAddr, cmd); err != nil {
		return
	}
	peer.MarkReported()
}
