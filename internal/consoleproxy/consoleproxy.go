// Package consoleproxy implements the console TCP multiplexing proxy
// (§4.5): a listener accepting many clients, each duplex-forwarding
// line-framed bytes to/from the single upstream console connection.
// Grounded on dedicated_server/console.py's ConsoleProxy/ConsoleConnection.
package consoleproxy

import (
	"bufio"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Upstream is satisfied by console.Client: the proxy only needs to forward
// framed bytes and tap the broadcast stream.
type Upstream interface {
	WriteBytes(chunk string) error
	SubscribeData(h func(chunk string)) (unsubscribe func())
}

// Proxy listens on Addr and forwards line-framed bytes to/from Upstream.
type Proxy struct {
	Addr     string
	Upstream Upstream
	Log      *zap.SugaredLogger

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	closed   bool
}

type conn struct {
	nc         net.Conn
	unsub      func()
	closedOnce sync.Once
	closedCh   chan struct{}
}

// New returns a Proxy bound to addr.
func New(addr string, upstream Upstream, log *zap.SugaredLogger) *Proxy {
	return &Proxy{Addr: addr, Upstream: upstream, Log: log, conns: map[*conn]struct{}{}}
}

// Start begins accepting connections in a background goroutine.
func (p *Proxy) Start() error {
	ln, err := net.Listen("tcp", p.Addr)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.listener = ln
	p.mu.Unlock()

	go p.acceptLoop(ln)
	return nil
}

func (p *Proxy) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		p.handle(nc)
	}
}

func (p *Proxy) handle(nc net.Conn) {
	c := &conn{nc: nc, closedCh: make(chan struct{})}

	// Register the connection's write_bytes as a raw-data tap so every
	// upstream chunk is broadcast to every connected proxy client
	// (§4.5 "on registration, subscribes the connection's write_bytes").
	c.unsub = p.Upstream.SubscribeData(func(chunk string) {
		if _, err := nc.Write([]byte(chunk)); err != nil {
			p.closeConn(c)
		}
	})

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.unsub()
		_ = nc.Close()
		return
	}
	p.conns[c] = struct{}{}
	p.mu.Unlock()

	go p.readLoop(c)
}

func (p *Proxy) readLoop(c *conn) {
	defer p.closeConn(c)

	reader := bufio.NewReader(c.nc)
	var pending strings.Builder

	for {
		chunk := make([]byte, 4096)
		n, err := reader.Read(chunk)
		if n > 0 {
			pending.Write(chunk[:n])
			full := pending.String()
			idx := strings.LastIndexByte(full, '\n')
			if idx >= 0 {
				toForward := full[:idx+1]
				rest := full[idx+1:]
				if werr := p.Upstream.WriteBytes(toForward); werr != nil {
					if p.Log != nil {
						p.Log.Warnw("console proxy: upstream write failed", "error", werr)
					}
					return
				}
				pending.Reset()
				pending.WriteString(rest)
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Proxy) closeConn(c *conn) {
	c.closedOnce.Do(func() {
		if c.unsub != nil {
			c.unsub()
		}
		_ = c.nc.Close()
		close(c.closedCh)

		p.mu.Lock()
		delete(p.conns, c)
		p.mu.Unlock()
	})
}

// Stop refuses new connections, closes all existing ones, and returns once
// every connection has finished closing (§4.5 shutdown).
func (p *Proxy) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.listener != nil {
		_ = p.listener.Close()
	}
	conns := make([]*conn, 0, len(p.conns))
	for c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		p.closeConn(c)
	}
	for _, c := range conns {
		<-c.closedCh
	}
}
