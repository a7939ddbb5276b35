package devicelinkproxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/il2fb-go/airbridge/internal/dlwire"
)

type fakeUpstream struct {
	reply func(msgs []dlwire.Message) ([]dlwire.Message, error)
}

func (f *fakeUpstream) SendMessages(ctx context.Context, msgs []dlwire.Message, timeout time.Duration) ([]dlwire.Message, error) {
	return f.reply(msgs)
}

func TestProxy_ForwardsAndRelaysReply(t *testing.T) {
	up := &fakeUpstream{reply: func(msgs []dlwire.Message) ([]dlwire.Message, error) {
		out := make([]dlwire.Message, len(msgs))
		for i, m := range msgs {
			out[i] = dlwire.Message{Opcode: m.Opcode, Payload: []byte("answer")}
		}
		return out, nil
	}}

	p := New("127.0.0.1:0", up, nil)
	require.NoError(t, p.Start())
	defer p.Stop()

	client, err := net.DialUDP("udp", nil, p.conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	req := dlwire.Compose([]dlwire.Message{{Opcode: 0x03, Payload: []byte("req")}})
	_, err = client.Write(req)
	require.NoError(t, err)

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)

	out, err := dlwire.Decompose(buf[:n])
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, byte(0x03), out[0].Opcode)
	assert.Equal(t, "answer", string(out[0].Payload))
}

func TestProxy_NoReplyOnUpstreamFailure(t *testing.T) {
	up := &fakeUpstream{reply: func(msgs []dlwire.Message) ([]dlwire.Message, error) {
		return nil, assertError{}
	}}

	p := New("127.0.0.1:0", up, nil)
	require.NoError(t, p.Start())
	defer p.Stop()

	client, err := net.DialUDP("udp", nil, p.conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	req := dlwire.Compose([]dlwire.Message{{Opcode: 0x01, Payload: nil}})
	_, err = client.Write(req)
	require.NoError(t, err)

	_ = client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 4096)
	_, err = client.Read(buf)
	assert.Error(t, err) // timeout: no reply was sent
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
