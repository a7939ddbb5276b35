package consoleproxy

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	mu      sync.Mutex
	written []string
	dataSub func(chunk string)
}

func (f *fakeUpstream) WriteBytes(chunk string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, chunk)
	return nil
}

func (f *fakeUpstream) SubscribeData(h func(string)) func() {
	f.mu.Lock()
	f.dataSub = h
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.dataSub = nil
		f.mu.Unlock()
	}
}

func (f *fakeUpstream) broadcast(chunk string) {
	f.mu.Lock()
	h := f.dataSub
	f.mu.Unlock()
	if h != nil {
		h(chunk)
	}
}

func (f *fakeUpstream) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func TestProxy_ForwardsOnlyCompleteLines(t *testing.T) {
	up := &fakeUpstream{}
	p := New("127.0.0.1:0", up, nil)
	require.NoError(t, p.Start())
	defer p.Stop()

	addr := p.listener.Addr().String()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("partial-no-newline"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, up.writes())

	_, err = conn.Write([]byte(" now-complete\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(up.writes()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "partial-no-newline now-complete\n", up.writes()[0])
}

func TestProxy_BroadcastsUpstreamDataToClient(t *testing.T) {
	up := &fakeUpstream{}
	p := New("127.0.0.1:0", up, nil)
	require.NoError(t, p.Start())
	defer p.Stop()

	addr := p.listener.Addr().String()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let the proxy register the subscription
	up.broadcast("hello from ds\n")

	reader := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello from ds\n", line)
}

func TestProxy_StopClosesAllConnections(t *testing.T) {
	up := &fakeUpstream{}
	p := New("127.0.0.1:0", up, nil)
	require.NoError(t, p.Start())

	addr := p.listener.Addr().String()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	p.Stop()

	buf := make([]byte, 1)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(buf)
	assert.Error(t, err) // connection closed by the proxy
}
