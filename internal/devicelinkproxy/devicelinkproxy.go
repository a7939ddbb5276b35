// Package devicelinkproxy implements the device-link UDP request/response
// proxy (§4.6): one datagram listener that decomposes inbound requests,
// forwards them upstream, and relays any answers back to the originating
// peer. Grounded on dedicated_server/device_link.py's DatagramProtocol.
package devicelinkproxy

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/il2fb-go/airbridge/internal/dlwire"
)

// Upstream is satisfied by devicelink.Client.
type Upstream interface {
	SendMessages(ctx context.Context, msgs []dlwire.Message, timeout time.Duration) ([]dlwire.Message, error)
}

// DefaultTimeout bounds each forwarded request.
const DefaultTimeout = 5 * time.Second

// Proxy relays datagrams between external peers and Upstream.
type Proxy struct {
	Addr     string
	Upstream Upstream
	Log      *zap.SugaredLogger
	Timeout  time.Duration

	conn   *net.UDPConn
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Proxy bound to addr.
func New(addr string, upstream Upstream, log *zap.SugaredLogger) *Proxy {
	return &Proxy{Addr: addr, Upstream: upstream, Log: log, Timeout: DefaultTimeout, done: make(chan struct{})}
}

// Start binds the UDP socket and begins serving datagrams.
func (p *Proxy) Start() error {
	laddr, err := net.ResolveUDPAddr("udp", p.Addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	p.conn = conn

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go p.serve(ctx)
	return nil
}

func (p *Proxy) serve(ctx context.Context) {
	defer close(p.done)

	buf := make([]byte, 65536)
	for {
		n, peer, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		datagram := append([]byte(nil), buf[:n]...)
		go p.handleDatagram(ctx, datagram, peer)
	}
}

// handleDatagram processes each datagram independently and concurrently
// (§4.6: "no ordering guarantee between requests... failures are logged and
// dropped").
func (p *Proxy) handleDatagram(ctx context.Context, datagram []byte, peer *net.UDPAddr) {
	msgs, err := dlwire.Decompose(datagram)
	if err != nil {
		if p.Log != nil {
			p.Log.Warnw("devicelink proxy: decompose failed", "peer", peer, "error", err)
		}
		return
	}
	if len(msgs) == 0 {
		return
	}

	answers, err := p.Upstream.SendMessages(ctx, msgs, p.Timeout)
	if err != nil {
		if p.Log != nil {
			p.Log.Warnw("devicelink proxy: upstream request failed", "peer", peer, "error", err)
		}
		return
	}
	if len(answers) == 0 {
		return
	}

	reply := dlwire.ComposeAnswer(answers)
	if _, err := p.conn.WriteToUDP(reply, peer); err != nil && p.Log != nil {
		p.Log.Warnw("devicelink proxy: reply write failed", "peer", peer, "error", err)
	}
}

// Stop closes the socket and waits for the serve loop to exit.
func (p *Proxy) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	<-p.done
}
