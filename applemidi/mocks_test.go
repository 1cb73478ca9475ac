package applemidi

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opd-ai/rtpmidid/transport"
	"github.com/stretchr/testify/require"
)

type sentDatagram struct {
	data []byte
	addr net.Addr
}

// MockTransport records written datagrams instead of sending them.
type MockTransport struct {
	mu       sync.Mutex
	local    net.Addr
	sent     []sentDatagram
	handler  transport.DatagramHandler
	closed   bool
	failWith error
}

func NewMockTransport(port int) *MockTransport {
	return &MockTransport{local: udpAddr(port)}
}

func (m *MockTransport) WriteTo(b []byte, addr net.Addr) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, transport.ErrClosed
	}
	if m.failWith != nil {
		return 0, m.failWith
	}
	data := make([]byte, len(b))
	copy(data, b)
	m.sent = append(m.sent, sentDatagram{data: data, addr: addr})
	return len(b), nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockTransport) LocalAddr() net.Addr { return m.local }

func (m *MockTransport) RegisterHandler(handler transport.DatagramHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Take returns and clears the recorded datagrams.
func (m *MockTransport) Take() []sentDatagram {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sent
	m.sent = nil
	return out
}

func (m *MockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// stepClock is a manually advanced media clock.
type stepClock struct{ now atomic.Int64 }

func newStepClock(now int64) *stepClock {
	c := &stepClock{}
	c.now.Store(now)
	return c
}

func (c *stepClock) Now() int64      { return c.now.Load() }
func (c *stepClock) Set(now int64)   { c.now.Store(now) }
func (c *stepClock) Advance(d int64) { c.now.Add(d) }

// fakeTime is a manually advanced wall clock.
type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func udpAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

type testController struct {
	*Controller
	control *MockTransport
	data    *MockTransport
	clock   *stepClock
	time    *fakeTime
}

func newTestController(t *testing.T, cfg Config) *testController {
	t.Helper()
	control := NewMockTransport(5004)
	data := NewMockTransport(5005)
	clk := newStepClock(1000)
	ft := newFakeTime()

	c, err := NewController(cfg, control, data, clk)
	require.NoError(t, err)
	c.SetTimeProvider(ft)

	return &testController{Controller: c, control: control, data: data, clock: clk, time: ft}
}

func mustMarshal(t *testing.T, cmd *Command) []byte {
	t.Helper()
	b, err := cmd.MarshalBinary()
	require.NoError(t, err)
	return b
}

func mustParse(t *testing.T, b []byte) *Command {
	t.Helper()
	cmd, err := ParseCommand(b)
	require.NoError(t, err)
	return cmd
}
