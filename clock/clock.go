package clock

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TickSource abstracts the raw monotonic timer for deterministic testing.
// Implementations must be safe for concurrent use.
type TickSource interface {
	// Ticks returns the current raw tick count.
	Ticks() uint64
	// Rate returns the number of raw ticks per second.
	Rate() uint64
}

// MonotonicSource counts nanoseconds on the process monotonic clock.
type MonotonicSource struct {
	start time.Time
}

// NewMonotonicSource creates a MonotonicSource anchored at the current instant.
func NewMonotonicSource() *MonotonicSource {
	return &MonotonicSource{start: time.Now()}
}

// Ticks returns the nanoseconds elapsed since the source was created.
func (m *MonotonicSource) Ticks() uint64 { return uint64(time.Since(m.start)) }

// Rate returns 1e9.
func (m *MonotonicSource) Rate() uint64 { return uint64(time.Second) }

var defaultSource TickSource = NewMonotonicSource()

// smallPrimes are used to keep the conversion fraction small.
var smallPrimes = []uint64{7, 5, 3, 2}

// Clock converts raw ticks of a TickSource into timestamps at a fixed
// sampling rate. A Clock is immutable after creation and safe for concurrent
// use.
type Clock struct {
	source TickSource
	rate   uint64
	numer  uint64
	denom  uint64
	offset int64
}

// New creates a clock ticking rate times per second on the default monotonic
// source. A rate of zero selects the source rate.
func New(rate uint64) *Clock {
	return NewWithSource(rate, defaultSource)
}

// NewWithSource creates a clock ticking rate times per second on src.
// Now returns zero (or very close to it) right after creation.
func NewWithSource(rate uint64, src TickSource) *Clock {
	if src == nil {
		src = defaultSource
	}

	c := &Clock{
		source: src,
		numer:  1,
		denom:  src.Rate(),
	}
	if rate == 0 {
		rate = c.denom / c.numer
	}
	c.numer, c.denom = multiplyFrac(c.numer, c.denom, rate)
	c.numer, c.denom = normalizeFrac(c.numer, c.denom)
	c.rate = rate
	c.offset = -c.realTime()

	logrus.WithFields(logrus.Fields{
		"function": "NewWithSource",
		"rate":     rate,
		"numer":    c.numer,
		"denom":    c.denom,
	}).Debug("Created clock")

	return c
}

var (
	globalMu    sync.Mutex
	globalClock *Clock
)

// Provide returns the process-wide clock when its rate matches, creating it
// on first use. Callers asking for any other rate get a private clock so the
// shared one is never replaced.
func Provide(rate uint64) *Clock {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalClock == nil {
		globalClock = New(rate)
		return globalClock
	}
	if globalClock.rate == rate {
		return globalClock
	}
	return New(rate)
}

// Rate returns the number of timestamp units per second.
func (c *Clock) Rate() uint64 { return c.rate }

// Now returns the current timestamp in units of 1/Rate seconds.
func (c *Clock) Now() int64 {
	return c.realTime() + c.offset
}

func (c *Clock) realTime() int64 {
	ticks := c.source.Ticks()
	// split the product to keep ticks*numer from overflowing
	q, r := ticks/c.denom, ticks%c.denom
	return int64(q*c.numer + r*c.numer/c.denom)
}

func normalizeFrac(numer, denom uint64) (uint64, uint64) {
	for _, p := range smallPrimes {
		for numer%p == 0 && denom%p == 0 {
			numer /= p
			denom /= p
		}
	}
	return numer, denom
}

// divideFrac divides numer/denom by fac, cancelling small prime factors of
// fac against the numerator where possible.
func divideFrac(numer, denom, fac uint64) (uint64, uint64) {
	for _, p := range smallPrimes {
		for fac%p == 0 {
			if numer%p == 0 {
				numer /= p
			} else {
				denom *= p
			}
			fac /= p
		}
	}
	return numer, denom * fac
}

func multiplyFrac(numer, denom, fac uint64) (uint64, uint64) {
	d, n := divideFrac(denom, numer, fac)
	return n, d
}
