package devicelink

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/il2fb-go/airbridge/internal/airerr"
	"github.com/il2fb-go/airbridge/internal/dlwire"
	"github.com/il2fb-go/airbridge/internal/radar"
)

// fakeDS is a minimal UDP echo server standing in for the DS device-link
// listener: it decomposes each datagram and replies with the same opcode
// and request-id prefix, optionally substituting a fixed payload.
func fakeDS(t *testing.T, reply func(op byte, payload []byte) []byte) *net.UDPConn {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	go func() {
		buf := make([]byte, 65536)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			msgs, err := dlwire.Decompose(buf[:n])
			if err != nil {
				continue
			}
			var out []dlwire.Message
			for _, m := range msgs {
				if len(m.Payload) < 4 {
					continue
				}
				idPrefix := m.Payload[:4]
				body := m.Payload[4:]
				var respBody []byte
				if reply != nil {
					respBody = reply(m.Opcode, body)
				}
				out = append(out, dlwire.Message{Opcode: m.Opcode, Payload: append(append([]byte{}, idPrefix...), respBody...)})
			}
			if len(out) > 0 {
				_, _ = conn.WriteToUDP(dlwire.Compose(out), addr)
			}
		}
	}()

	return conn
}

func TestClient_SendMessages_CorrelatesReply(t *testing.T) {
	server := fakeDS(t, func(op byte, payload []byte) []byte { return []byte("ok") })
	defer server.Close()

	c, err := Dial(server.LocalAddr().String())
	require.NoError(t, err)
	defer c.Close()

	out, err := c.SendMessages(context.Background(), []dlwire.Message{{Opcode: OpGetAllShips}}, time.Second)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ok", string(out[0].Payload))
}

func TestClient_SendMessages_TimesOutWithNoServer(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close()) // nothing listening now

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.SendMessages(context.Background(), []dlwire.Message{{Opcode: OpGetAllShips}}, 50*time.Millisecond)
	assert.ErrorIs(t, err, airerr.ErrTimeout)
}

func TestClient_GetAllMovingActorsPositions_SplitsTimeoutBudget(t *testing.T) {
	server := fakeDS(t, func(op byte, payload []byte) []byte { return []byte{op} })
	defer server.Close()

	c, err := Dial(server.LocalAddr().String())
	require.NoError(t, err)
	defer c.Close()

	snap, err := c.GetAllMovingActorsPositions(context.Background(), time.Second)
	require.NoError(t, err)
	list, ok := snap.([]radar.Snapshot)
	require.True(t, ok)
	assert.Len(t, list, 3)
}

func TestClient_SendMessages_EmptyInput(t *testing.T) {
	server := fakeDS(t, nil)
	defer server.Close()

	c, err := Dial(server.LocalAddr().String())
	require.NoError(t, err)
	defer c.Close()

	out, err := c.SendMessages(context.Background(), nil, time.Second)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestClient_SendMessages_AfterCloseIsConnectionAborted(t *testing.T) {
	server := fakeDS(t, func(op byte, payload []byte) []byte { return []byte("ok") })
	defer server.Close()

	c, err := Dial(server.LocalAddr().String())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.SendMessages(context.Background(), []dlwire.Message{{Opcode: OpGetAllShips}}, time.Second)
	assert.ErrorIs(t, err, airerr.ErrConnectionAborted)
}
