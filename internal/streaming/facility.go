// Package streaming implements the generic per-topic fan-out facility
// (§4.9) and its three concrete variants (chat, events, not-parsed
// strings). Grounded on streaming/facilities.py's ChatStreamingFacility and
// EventsStreamingFacility: a queue consumer task awaiting every subscribed
// sink's write concurrently per item, with before-first-subscriber /
// after-last-subscriber hooks toggling the upstream tap.
package streaming

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/il2fb-go/airbridge/internal/airtypes"
	"github.com/il2fb-go/airbridge/internal/sink"
)

// Facility is the generic skeleton: a queue of TimestampedData, a dynamic
// sink set, and a single consumer goroutine.
type Facility struct {
	Name string
	Log  *zap.SugaredLogger

	// BeforeFirstSubscriber/AfterLastSubscriber fire on the 0->1 and 1->0
	// subscriber-count transitions respectively (§4.9 subscribe/unsubscribe).
	BeforeFirstSubscriber func()
	AfterLastSubscriber   func()

	mu    sync.Mutex
	sinks map[sink.Sink]struct{}

	queue     chan airtypes.TimestampedData
	done      chan struct{}
	stopOnce  sync.Once
}

// New returns a Facility with the given queue depth.
func New(name string, log *zap.SugaredLogger, queueSize int) *Facility {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Facility{
		Name:  name,
		Log:   log,
		sinks: map[sink.Sink]struct{}{},
		queue: make(chan airtypes.TimestampedData, queueSize),
		done:  make(chan struct{}),
	}
}

// Subscribe adds s to the active sink set, firing BeforeFirstSubscriber if
// the set was empty.
func (f *Facility) Subscribe(s sink.Sink) {
	f.mu.Lock()
	wasEmpty := len(f.sinks) == 0
	f.sinks[s] = struct{}{}
	f.mu.Unlock()

	if wasEmpty && f.BeforeFirstSubscriber != nil {
		f.BeforeFirstSubscriber()
	}
}

// Unsubscribe removes s, firing AfterLastSubscriber if the set becomes
// empty. Unsubscribing a sink never subscribed is a no-op error signaled
// via the bool return (§8 round-trip: "unsubscribe of a sink never
// subscribed is an error").
func (f *Facility) Unsubscribe(s sink.Sink) bool {
	f.mu.Lock()
	_, existed := f.sinks[s]
	delete(f.sinks, s)
	empty := len(f.sinks) == 0
	f.mu.Unlock()

	if existed && empty && f.AfterLastSubscriber != nil {
		f.AfterLastSubscriber()
	}
	return existed
}

// Publish enqueues item. If the queue is full the item is dropped and
// logged rather than blocking the producer indefinitely; this does not
// change the delivery contract for items that ARE enqueued (§8 invariant 3
// only covers items successfully enqueued).
func (f *Facility) Publish(item airtypes.TimestampedData) {
	select {
	case f.queue <- item:
	default:
		if f.Log != nil {
			f.Log.Warnw("facility queue full, dropping item", "facility", f.Name)
		}
	}
}

// Start launches the single consumer goroutine.
func (f *Facility) Start(ctx context.Context) {
	go f.run(ctx)
}

func (f *Facility) run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case item, ok := <-f.queue:
			if !ok {
				return
			}
			f.dispatch(ctx, item)
		case <-ctx.Done():
			return
		}
	}
}

// dispatch awaits every currently-subscribed sink's Write concurrently
// (§9 "JointStreamingSink fan-out semantics"); a sink failure is logged and
// swallowed, never propagated (§7 SinkFailure).
func (f *Facility) dispatch(ctx context.Context, item airtypes.TimestampedData) {
	f.mu.Lock()
	targets := make([]sink.Sink, 0, len(f.sinks))
	for s := range f.sinks {
		targets = append(targets, s)
	}
	f.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range targets {
		s := s
		g.Go(func() error {
			if err := s.Write(gctx, item); err != nil && f.Log != nil {
				f.Log.Warnw("sink write failed", "facility", f.Name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Stop closes the queue, causing the consumer to drain remaining items and
// return. Calling Stop twice is safe (§8 "stop() called twice is
// equivalent to stop() called once").
func (f *Facility) Stop() {
	f.stopOnce.Do(func() {
		close(f.queue)
	})
}

// WaitStopped blocks until the consumer goroutine has returned.
func (f *Facility) WaitStopped() { <-f.done }
