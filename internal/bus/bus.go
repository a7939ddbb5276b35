// Package bus wraps a reconnecting NATS connection (the ecosystem
// equivalent of the original's NATSClient/NATSStreamingClient in nats.py)
// and exposes a Sink implementation per subject for the streaming facilities
// (§4.11). One Sink instance owns one subject, an unbounded outbound queue,
// and a worker goroutine that publishes only while the shared connected
// flag (set by the client's disconnect/reconnect callbacks) is up. The
// worker runs when a Write wakes it; a reconnect alone does not wake it, so
// items queued while the connection was down are published on the first
// Write after it comes back.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/il2fb-go/airbridge/internal/airtypes"
	"github.com/il2fb-go/airbridge/internal/sink"
)

// activeClient is the process-wide bus Client used by the "bus" sink
// shortcut (§6). Set once by the supervisor during start, after Connect
// succeeds; the shortcut registry can only build sinks from config args, so
// it needs a place to find the shared connection.
var activeClient *Client

// UseAsDefault makes c available to the "bus" sink shortcut factory.
func (c *Client) UseAsDefault() { activeClient = c }

func newSinkFromArgs(args map[string]any) (sink.Sink, error) {
	if activeClient == nil {
		return nil, fmt.Errorf("bus: no active client configured")
	}
	subject, _ := args["subject"].(string)
	if subject == "" {
		return nil, fmt.Errorf("bus: sink requires a \"subject\" arg")
	}
	return NewSink(activeClient, subject), nil
}

func init() {
	sink.Register("bus", newSinkFromArgs)
}

// Client owns one reconnecting NATS connection shared by all bus sinks.
type Client struct {
	Log *zap.SugaredLogger

	conn      *nats.Conn
	connected atomic.Bool
}

// Connect dials urls with automatic reconnect enabled, wiring connect/
// disconnect/reconnect handlers onto the shared connected flag, the same
// role the original's connection_event plays.
func Connect(urls string, log *zap.SugaredLogger) (*Client, error) {
	c := &Client{Log: log}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.connected.Store(false)
			if c.Log != nil {
				c.Log.Warnw("bus disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.connected.Store(true)
			if c.Log != nil {
				c.Log.Infow("bus reconnected")
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.connected.Store(false)
		}),
	}

	conn, err := nats.Connect(urls, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", urls, err)
	}
	c.conn = conn
	c.connected.Store(conn.IsConnected())
	return c, nil
}

// Close drains and closes the underlying connection.
func (c *Client) Close() {
	if c.conn != nil {
		_ = c.conn.Drain()
	}
}

// Sink publishes items to Subject as JSON, queueing writes in an unbounded
// slice and flushing them on each Write while the connection is up, after
// streaming/subscribers/nats.py's NATSStreamingSink.
type Sink struct {
	Subject string

	client *Client
	log    *zap.SugaredLogger

	mu      sync.Mutex
	queue   []airtypes.TimestampedData
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewSink returns a Sink bound to subject, using client's connection.
func NewSink(client *Client, subject string) *Sink {
	return &Sink{
		Subject: subject,
		client:  client,
		log:     client.Log,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Write enqueues item for publishing; it never blocks on the network.
func (s *Sink) Write(_ context.Context, item airtypes.TimestampedData) error {
	s.mu.Lock()
	s.queue = append(s.queue, item)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// PlugIn starts the publish worker.
func (s *Sink) PlugIn(ctx context.Context) error {
	go s.run(ctx)
	return nil
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		for {
			if !s.client.connected.Load() {
				break
			}
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			item := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			if !s.client.connected.Load() {
				// Connection dropped between pull and publish: retry on
				// the next wake rather than losing the item.
				s.mu.Lock()
				s.queue = append([]airtypes.TimestampedData{item}, s.queue...)
				s.mu.Unlock()
				break
			}

			payload, err := json.Marshal(item)
			if err != nil {
				if s.log != nil {
					s.log.Warnw("bus sink: encode failed", "error", err)
				}
				continue
			}
			if err := s.client.conn.Publish(s.Subject, payload); err != nil {
				if s.log != nil {
					s.log.Warnw("bus sink: publish failed", "subject", s.Subject, "error", err)
				}
			}
		}
	}
}

// Unplug stops the worker.
func (s *Sink) Unplug(context.Context) error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return nil
}

// WaitUnplugged blocks until the worker has returned.
func (s *Sink) WaitUnplugged() { <-s.done }
