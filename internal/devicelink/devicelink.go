// Package devicelink implements the upstream UDP device-link client
// (§4.4): one socket to the DS, request/response correlation by request id,
// and the typed position-read RPCs radar.py exposes. Grounded on
// radar.py's Radar class and device_link.py's datagram protocol.
package devicelink

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/il2fb-go/airbridge/internal/airerr"
	"github.com/il2fb-go/airbridge/internal/dlwire"
	"github.com/il2fb-go/airbridge/internal/radar"
)

type pending struct {
	reply chan dlwire.Message
}

// Client maintains one UDP socket to the DS device-link listener.
type Client struct {
	conn *net.UDPConn

	mu      sync.Mutex
	nextID  uint32
	waiting map[uint32]*pending
	closed  bool
}

// Dial opens the UDP socket to addr and starts the response-reading loop.
func Dial(addr string) (*Client, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("devicelink: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("devicelink: dial %s: %w", addr, err)
	}
	c := &Client{conn: conn, waiting: map[uint32]*pending{}}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return
		}
		msgs, err := dlwire.Decompose(buf[:n])
		if err != nil || len(msgs) == 0 {
			continue
		}
		for _, m := range msgs {
			if len(m.Payload) < 4 {
				continue
			}
			id := binary.BigEndian.Uint32(m.Payload[:4])
			c.mu.Lock()
			p, ok := c.waiting[id]
			if ok {
				delete(c.waiting, id)
			}
			c.mu.Unlock()
			if ok {
				p.reply <- dlwire.Message{Opcode: m.Opcode, Payload: m.Payload[4:]}
			}
		}
	}
}

// SendMessages serializes msgs into one datagram tagged with fresh request
// ids, sends it, and awaits all correlated answers up to deadline (§4.4
// send_messages).
func (c *Client) SendMessages(ctx context.Context, msgs []dlwire.Message, timeout time.Duration) ([]dlwire.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("devicelink: %w", airerr.ErrConnectionAborted)
	}
	ids := make([]uint32, len(msgs))
	tagged := make([]dlwire.Message, len(msgs))
	waits := make([]*pending, len(msgs))
	for i, m := range msgs {
		c.nextID++
		id := c.nextID
		ids[i] = id
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], id)
		tagged[i] = dlwire.Message{Opcode: m.Opcode, Payload: append(hdr[:], m.Payload...)}
		p := &pending{reply: make(chan dlwire.Message, 1)}
		waits[i] = p
		c.waiting[id] = p
	}
	c.mu.Unlock()

	datagram := dlwire.Compose(tagged)
	if _, err := c.conn.Write(datagram); err != nil {
		c.clearWaiting(ids)
		return nil, fmt.Errorf("devicelink: send: %w", err)
	}

	deadline := time.Now().Add(timeout)
	results := make([]dlwire.Message, 0, len(msgs))
	for i, p := range waits {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)
		select {
		case ans := <-p.reply:
			results = append(results, ans)
		case <-timer.C:
			c.clearWaiting(ids[i:])
			timer.Stop()
			return nil, fmt.Errorf("devicelink: %w", airerr.ErrTimeout)
		case <-ctx.Done():
			c.clearWaiting(ids[i:])
			timer.Stop()
			return nil, ctx.Err()
		}
		timer.Stop()
	}
	return results, nil
}

func (c *Client) clearWaiting(ids []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.waiting, id)
	}
}

// Close shuts down the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

// Opcodes for the typed position-read RPCs (§4.4).
const (
	OpRefreshRadar         byte = 0x01
	OpGetAllShips          byte = 0x02
	OpGetMovingAircrafts   byte = 0x03
	OpGetMovingGroundUnits byte = 0x04
	OpGetAllHouses         byte = 0x05
	OpGetStationaryObjects byte = 0x06
)

func (c *Client) read(ctx context.Context, op byte, timeout time.Duration) (radar.Snapshot, error) {
	answers, err := c.SendMessages(ctx, []dlwire.Message{{Opcode: op}}, timeout)
	if err != nil {
		return nil, err
	}
	if len(answers) == 0 {
		return nil, nil
	}
	return answers[0].Payload, nil
}

// RefreshRadar instructs the DS to repopulate its position snapshot.
func (c *Client) RefreshRadar(ctx context.Context, timeout time.Duration) error {
	_, err := c.read(ctx, OpRefreshRadar, timeout)
	return err
}

// GetAllShipsPositions reads every ship's position.
func (c *Client) GetAllShipsPositions(ctx context.Context, timeout time.Duration) (radar.Snapshot, error) {
	return c.read(ctx, OpGetAllShips, timeout)
}

// GetAllMovingAircraftsPositions reads moving aircraft positions.
func (c *Client) GetAllMovingAircraftsPositions(ctx context.Context, timeout time.Duration) (radar.Snapshot, error) {
	return c.read(ctx, OpGetMovingAircrafts, timeout)
}

// GetAllMovingGroundUnitsPositions reads moving ground unit positions.
func (c *Client) GetAllMovingGroundUnitsPositions(ctx context.Context, timeout time.Duration) (radar.Snapshot, error) {
	return c.read(ctx, OpGetMovingGroundUnits, timeout)
}

// GetAllHousesPositions reads house positions.
func (c *Client) GetAllHousesPositions(ctx context.Context, timeout time.Duration) (radar.Snapshot, error) {
	return c.read(ctx, OpGetAllHouses, timeout)
}

// GetAllStationaryObjectsPositions reads stationary object positions.
func (c *Client) GetAllStationaryObjectsPositions(ctx context.Context, timeout time.Duration) (radar.Snapshot, error) {
	return c.read(ctx, OpGetStationaryObjects, timeout)
}

// GetAllMovingActorsPositions divides one overall timeout budget across
// three sequential reads (aircrafts, ground units, ships), decrementing the
// remaining budget after each and failing fast with Timeout if it is
// exhausted before the next read starts. This is radar.py's
// get_all_moving_actors_positions, carried forward verbatim per
// SPEC_FULL.md §D.
func (c *Client) GetAllMovingActorsPositions(ctx context.Context, timeout time.Duration) (radar.Snapshot, error) {
	type read func(context.Context, time.Duration) (radar.Snapshot, error)
	reads := []read{
		c.GetAllMovingAircraftsPositions,
		c.GetAllMovingGroundUnitsPositions,
		c.GetAllShipsPositions,
	}

	deadline := time.Now().Add(timeout)
	results := make([]radar.Snapshot, 0, len(reads))

	for _, r := range reads {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("devicelink: %w", airerr.ErrTimeout)
		}
		snap, err := r(ctx, remaining)
		if err != nil {
			return nil, err
		}
		results = append(results, snap)
	}
	return results, nil
}

// GetAllStationaryActorsPositions applies the same timeout-budget-splitting
// strategy as GetAllMovingActorsPositions, across houses and stationary
// objects.
func (c *Client) GetAllStationaryActorsPositions(ctx context.Context, timeout time.Duration) (radar.Snapshot, error) {
	type read func(context.Context, time.Duration) (radar.Snapshot, error)
	reads := []read{
		c.GetAllHousesPositions,
		c.GetAllStationaryObjectsPositions,
	}

	deadline := time.Now().Add(timeout)
	results := make([]radar.Snapshot, 0, len(reads))

	for _, r := range reads {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("devicelink: %w", airerr.ErrTimeout)
		}
		snap, err := r(ctx, remaining)
		if err != nil {
			return nil, err
		}
		results = append(results, snap)
	}
	return results, nil
}
