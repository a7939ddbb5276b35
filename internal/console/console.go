// Package console implements the upstream TCP console client (§4.3): one
// connection to the DS console, FIFO request/response correlation, raw
// byte taps for the console proxy, and typed chat/connection-event
// subscriptions. Grounded on dedicated_server/console.py's
// ConsoleConnection plus the original's command RPC helpers.
package console

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/il2fb-go/airbridge/internal/airerr"
	"github.com/il2fb-go/airbridge/internal/parser"
)

// Belligerent is the canonical enum the numeric chat_to_belligerent id
// must map to before a command is issued (§4.3, SPEC_FULL.md §D).
type Belligerent int

const (
	BelligerentNone Belligerent = 0
	BelligerentRed  Belligerent = 1
	BelligerentBlue Belligerent = 2
)

var belligerentNames = map[Belligerent]string{
	BelligerentNone: "NONE",
	BelligerentRed:  "Red",
	BelligerentBlue: "Blue",
}

// ParseBelligerent validates id against the known enum, failing with
// ErrBadInput on anything else.
func ParseBelligerent(id int) (Belligerent, error) {
	b := Belligerent(id)
	if _, ok := belligerentNames[b]; !ok {
		return 0, fmt.Errorf("console: unknown belligerent id %d: %w", id, airerr.ErrBadInput)
	}
	return b, nil
}

type pendingRPC struct {
	reply chan string
}

// Client owns one TCP connection to the DS console.
type Client struct {
	conn net.Conn
	w    *bufio.Writer

	mu          sync.Mutex
	rawSubs     []func(chunk string)
	chatSubs    []func(ChatEvent)
	connSubs    []func(*parser.Event)
	pendingFIFO []*pendingRPC
	closed      bool

	done chan struct{}
}

// ChatEvent mirrors streaming.ChatEvent's shape without importing the
// streaming package (kept decoupled per §9's narrow-capability pattern).
type ChatEvent struct {
	From    string
	Message string
}

// Dial connects to addr and starts the read loop.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("console: dial %s: %w", addr, err)
	}
	c := &Client{conn: conn, w: bufio.NewWriter(conn), done: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		chunk := scanner.Text() + "\n"
		c.broadcastRaw(chunk)
		c.routeLine(chunk)
	}
}

func (c *Client) broadcastRaw(chunk string) {
	c.mu.Lock()
	subs := append([]func(string){}, c.rawSubs...)
	c.mu.Unlock()
	for _, h := range subs {
		h(chunk)
	}
}

func (c *Client) routeLine(chunk string) {
	line := strings.TrimRight(chunk, "\n")

	if ev, ok := parseChatLine(line); ok {
		c.mu.Lock()
		subs := append([]func(ChatEvent){}, c.chatSubs...)
		c.mu.Unlock()
		for _, h := range subs {
			h(ev)
		}
		return
	}

	if ev, ok := parseConnectionLine(line); ok {
		c.mu.Lock()
		subs := append([]func(*parser.Event){}, c.connSubs...)
		c.mu.Unlock()
		for _, h := range subs {
			h(ev)
		}
		return
	}

	c.mu.Lock()
	var head *pendingRPC
	if len(c.pendingFIFO) > 0 {
		head = c.pendingFIFO[0]
	}
	c.mu.Unlock()
	if head != nil {
		head.reply <- line
	}
}

func parseChatLine(line string) (ChatEvent, bool) {
	const prefix = "Chat: "
	if !strings.HasPrefix(line, prefix) {
		return ChatEvent{}, false
	}
	rest := strings.TrimPrefix(line, prefix)
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return ChatEvent{}, false
	}
	return ChatEvent{From: strings.TrimSpace(parts[0]), Message: strings.TrimSpace(parts[1])}, true
}

func parseConnectionLine(line string) (*parser.Event, bool) {
	switch {
	case strings.Contains(line, "has connected"):
		return &parser.Event{Kind: parser.EventHumanConnected, Raw: line}, true
	case strings.Contains(line, "has disconnected"):
		return &parser.Event{Kind: parser.EventHumanDisconnected, Raw: line}, true
	}
	return nil, false
}

// SubscribeData registers a raw byte-chunk tap (§4.3 subscribe_to_data),
// used by the console proxy. Returns an unsubscribe func.
func (c *Client) SubscribeData(h func(chunk string)) func() {
	c.mu.Lock()
	c.rawSubs = append(c.rawSubs, h)
	idx := len(c.rawSubs) - 1
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.rawSubs) {
			c.rawSubs = append(c.rawSubs[:idx], c.rawSubs[idx+1:]...)
		}
	}
}

// SubscribeChat registers a chat-event subscriber and returns an
// unsubscribe func. The supervisor adapts it to streaming.ChatTap, whose
// callback takes streaming.ChatEvent instead of this package's ChatEvent.
func (c *Client) SubscribeChat(h func(ChatEvent)) func() {
	c.mu.Lock()
	c.chatSubs = append(c.chatSubs, h)
	idx := len(c.chatSubs) - 1
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.chatSubs) {
			c.chatSubs = append(c.chatSubs[:idx], c.chatSubs[idx+1:]...)
		}
	}
}

// SubscribeHumanConnectionEvents satisfies streaming.ConnectionEventTap.
func (c *Client) SubscribeHumanConnectionEvents(h func(*parser.Event)) func() {
	c.mu.Lock()
	c.connSubs = append(c.connSubs, h)
	idx := len(c.connSubs) - 1
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.connSubs) {
			c.connSubs = append(c.connSubs[:idx], c.connSubs[idx+1:]...)
		}
	}
}

// rpc writes cmd and awaits the next response line via the FIFO pipeline
// (§4.3: "responses are matched by arrival order for console").
func (c *Client) rpc(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	p := &pendingRPC{reply: make(chan string, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", fmt.Errorf("console: %w", airerr.ErrConnectionAborted)
	}
	c.pendingFIFO = append(c.pendingFIFO, p)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		for i, q := range c.pendingFIFO {
			if q == p {
				c.pendingFIFO = append(c.pendingFIFO[:i], c.pendingFIFO[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
	}()

	c.mu.Lock()
	_, werr := c.w.WriteString(cmd + "\n")
	if werr == nil {
		werr = c.w.Flush()
	}
	c.mu.Unlock()
	if werr != nil {
		return "", fmt.Errorf("console: write: %w", werr)
	}

	var timerC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case line := <-p.reply:
		return line, nil
	case <-timerC:
		return "", fmt.Errorf("console: %w", airerr.ErrTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// GetServerInfo issues the "server" info RPC.
func (c *Client) GetServerInfo(ctx context.Context, timeout time.Duration) (string, error) {
	return c.rpc(ctx, "server", timeout)
}

// GetHumansCount issues the humans-count RPC.
func (c *Client) GetHumansCount(ctx context.Context, timeout time.Duration) (int, error) {
	line, err := c.rpc(ctx, "user", timeout)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(line))
	if convErr != nil {
		return 0, fmt.Errorf("console: parse humans count %q: %w", line, airerr.ErrBadInput)
	}
	return n, nil
}

// KickByCallsign issues a kick command for the named player.
func (c *Client) KickByCallsign(ctx context.Context, callsign string, timeout time.Duration) error {
	_, err := c.rpc(ctx, "kick "+callsign, timeout)
	return err
}

// ChatToAll sends a chat message to every connected player.
func (c *Client) ChatToAll(ctx context.Context, message string, timeout time.Duration) error {
	_, err := c.rpc(ctx, "chat all "+message, timeout)
	return err
}

// ChatToBelligerent validates belligerentID against the canonical enum
// before issuing the command, failing with ErrBadInput on an unknown id
// (§4.3, SPEC_FULL.md §D).
func (c *Client) ChatToBelligerent(ctx context.Context, belligerentID int, message string, timeout time.Duration) error {
	b, err := ParseBelligerent(belligerentID)
	if err != nil {
		return err
	}
	_, err = c.rpc(ctx, fmt.Sprintf("chat army %s %s", belligerentNames[b], message), timeout)
	return err
}

// WriteBytes forwards a pre-framed chunk (ending in \n) straight to the
// upstream connection, used by the console proxy (§4.5) to relay a
// client's line-terminated input without going through the RPC pipeline.
func (c *Client) WriteBytes(chunk string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("console: %w", airerr.ErrConnectionAborted)
	}
	if _, err := c.w.WriteString(chunk); err != nil {
		return err
	}
	return c.w.Flush()
}

// Close shuts down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

// WaitClosed blocks until the read loop has returned.
func (c *Client) WaitClosed() { <-c.done }
