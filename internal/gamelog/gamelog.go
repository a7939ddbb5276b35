// Package gamelog implements the game-log worker (§4.8): it consumes lines
// from a thread-safe queue (the watchdog is the producer), parses each with
// an external parser.Parser, and dispatches the result to either the
// "events" or the "not parsed strings" subscriber sets. Grounded on
// game_log.py's GameLogWorker: a dedicated OS thread draining a blocking
// queue, with mutex-guarded subscriber lists so the async side can
// subscribe/unsubscribe without racing the worker goroutine.
package gamelog

import (
	"sync"

	"go.uber.org/zap"

	"github.com/il2fb-go/airbridge/internal/parser"
)

// EventHandler receives one parsed Event.
type EventHandler func(*parser.Event)

// StringHandler receives one not-parsed line.
type StringHandler func(line string)

// Worker drains lines from In and dispatches parse results to subscribers.
// In is closed by the producer (the watchdog bridge) to signal shutdown,
// mirroring the original's None sentinel.
type Worker struct {
	In     chan string
	Parser parser.Parser
	Log    *zap.SugaredLogger

	mu            sync.Mutex
	eventSubs     map[int]EventHandler
	notParsedSubs map[int]StringHandler
	nextSubID     int

	done chan struct{}
}

// New returns a Worker. queueSize bounds the channel the watchdog posts
// into; a bound matches the original's bounded thread-safe queue.
func New(p parser.Parser, log *zap.SugaredLogger, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Worker{
		In:            make(chan string, queueSize),
		Parser:        p,
		Log:           log,
		eventSubs:     make(map[int]EventHandler),
		notParsedSubs: make(map[int]StringHandler),
		done:          make(chan struct{}),
	}
}

// SubscribeEvents registers an events subscriber (thread-safe: callable
// from the async side while Run executes in its own goroutine). The
// returned func deregisters it; calling it more than once is a no-op.
func (w *Worker) SubscribeEvents(h EventHandler) (unsubscribe func()) {
	w.mu.Lock()
	id := w.nextSubID
	w.nextSubID++
	w.eventSubs[id] = h
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.eventSubs, id)
	}
}

// SubscribeNotParsed registers a not-parsed-strings subscriber. The
// returned func deregisters it; calling it more than once is a no-op.
func (w *Worker) SubscribeNotParsed(h StringHandler) (unsubscribe func()) {
	w.mu.Lock()
	id := w.nextSubID
	w.nextSubID++
	w.notParsedSubs[id] = h
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.notParsedSubs, id)
	}
}

// Run drains In until it is closed, parsing each line and dispatching.
// Meant to run in its own goroutine (the original's dedicated thread).
func (w *Worker) Run() {
	defer close(w.done)

	for line := range w.In {
		ev, err := w.Parser.Parse(line)
		if err != nil {
			if w.Log != nil {
				w.Log.Warnw("game log line failed to parse", "error", err, "line", line)
			}
			continue
		}
		if ev == nil {
			w.dispatchNotParsed(line)
			continue
		}
		w.dispatchEvent(ev)
	}
}

func (w *Worker) dispatchEvent(ev *parser.Event) {
	w.mu.Lock()
	subs := make([]EventHandler, 0, len(w.eventSubs))
	for _, h := range w.eventSubs {
		subs = append(subs, h)
	}
	w.mu.Unlock()
	for _, h := range subs {
		h(ev)
	}
}

func (w *Worker) dispatchNotParsed(line string) {
	w.mu.Lock()
	subs := make([]StringHandler, 0, len(w.notParsedSubs))
	for _, h := range w.notParsedSubs {
		subs = append(subs, h)
	}
	w.mu.Unlock()
	for _, h := range subs {
		h(line)
	}
}

// WaitStopped blocks until Run has returned (In was closed and drained).
func (w *Worker) WaitStopped() {
	<-w.done
}
