package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/rtpmidid/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	data []byte
	addr net.Addr
}

type recorder struct {
	mu   sync.Mutex
	msgs []received
}

func (r *recorder) handle(data []byte, addr net.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, received{data: data, addr: addr})
}

func (r *recorder) snapshot() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.msgs...)
}

func TestUDPTransport_Loopback(t *testing.T) {
	a, err := NewUDPTransport("127.0.0.1:0", WithReuseAddress(true))
	require.NoError(t, err)
	defer a.Close()

	b, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	rec := &recorder{}
	b.RegisterHandler(rec.handle)

	for _, payload := range [][]byte{{0xff, 0xff, 'I', 'N'}, {1, 2, 3}} {
		n, err := a.WriteTo(payload, b.LocalAddr())
		require.NoError(t, err)
		assert.Equal(t, len(payload), n)
	}

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)

	msgs := rec.snapshot()
	assert.Equal(t, []byte{0xff, 0xff, 'I', 'N'}, msgs[0].data)
	assert.Equal(t, []byte{1, 2, 3}, msgs[1].data)
	assert.Equal(t, a.LocalAddr().String(), msgs[0].addr.String())
}

func TestUDPTransport_DropsOversized(t *testing.T) {
	a, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()

	b, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	rec := &recorder{}
	b.RegisterHandler(rec.handle)

	_, err = a.WriteTo(make([]byte, limits.MaxDatagram+1), b.LocalAddr())
	require.NoError(t, err)
	_, err = a.WriteTo([]byte{42}, b.LocalAddr())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte{42}, rec.snapshot()[0].data)
}

func TestUDPTransport_Close(t *testing.T) {
	tr, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())

	_, err = tr.WriteTo([]byte{1}, tr.LocalAddr())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUDPTransport_BindFailure(t *testing.T) {
	_, err := NewUDPTransport("127.0.0.1:99999")
	assert.Error(t, err)
}

func TestWithPortOffset(t *testing.T) {
	base := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5004}

	rtpAddr, err := WithPortOffset(base, 1)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:5005", rtpAddr.String())
	assert.Equal(t, 5004, base.Port, "input must not be modified")

	back, err := WithPortOffset(rtpAddr, -1)
	require.NoError(t, err)
	assert.Equal(t, base.String(), back.String())

	_, err = WithPortOffset(&net.UDPAddr{Port: 65535}, 1)
	assert.Error(t, err)

	_, err = WithPortOffset(&net.TCPAddr{Port: 1}, 1)
	assert.ErrorIs(t, err, ErrUnsupportedAddress)

	_, err = WithPortOffset(nil, 1)
	assert.ErrorIs(t, err, ErrUnsupportedAddress)
}

func TestResolveUDPAddr(t *testing.T) {
	addr, err := ResolveUDPAddr("127.0.0.1:5004")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5004", addr.String())

	_, err = ResolveUDPAddr("no-port")
	assert.Error(t, err)
}
