package applemidi

import (
	"fmt"
	"time"

	"github.com/opd-ai/rtpmidid/limits"
)

// Config holds the session controller settings.
type Config struct {
	// Name is announced in invitation replies and outbound invitations.
	Name string

	// AcceptNewPeers controls whether inbound invitations are accepted.
	AcceptNewPeers bool

	// HousekeepingInterval is the period of the round robin sync sweep.
	HousekeepingInterval time.Duration

	// SyncTimeout is how long an unanswered sync exchange blocks a new one
	// with the same peer.
	SyncTimeout time.Duration
}

// DefaultConfig returns the default controller settings.
func DefaultConfig() Config {
	return Config{
		Name:                 "rtpmidid",
		AcceptNewPeers:       true,
		HousekeepingInterval: 1500 * time.Millisecond,
		SyncTimeout:          10 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := limits.ValidateSessionName(c.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.HousekeepingInterval <= 0 {
		return fmt.Errorf("%w: housekeeping interval must be positive, got %v", ErrInvalidConfig, c.HousekeepingInterval)
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("%w: sync timeout must be positive, got %v", ErrInvalidConfig, c.SyncTimeout)
	}
	return nil
}
