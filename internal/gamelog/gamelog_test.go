package gamelog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/il2fb-go/airbridge/internal/parser"
)

func TestWorker_DispatchesEventsAndNotParsed(t *testing.T) {
	w := New(parser.NewReference(), nil, 16)
	go w.Run()

	var mu sync.Mutex
	var events []*parser.Event
	var notParsed []string
	w.SubscribeEvents(func(ev *parser.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	w.SubscribeNotParsed(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		notParsed = append(notParsed, line)
	})

	w.In <- "Pilot1 has connected"
	w.In <- "this line matches nothing"
	close(w.In)
	w.WaitStopped()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, parser.EventHumanConnected, events[0].Kind)
	assert.Equal(t, "Pilot1", events[0].Actor)
	require.Len(t, notParsed, 1)
	assert.Equal(t, "this line matches nothing", notParsed[0])
}

func TestWorker_ParseErrorIsLoggedAndDropped(t *testing.T) {
	w := New(failingParser{}, nil, 16)
	go w.Run()

	var called bool
	w.SubscribeEvents(func(ev *parser.Event) { called = true })
	w.SubscribeNotParsed(func(line string) { called = true })

	w.In <- "anything"
	close(w.In)
	w.WaitStopped()

	assert.False(t, called)
}

func TestWorker_UnsubscribeStopsFurtherDelivery(t *testing.T) {
	w := New(parser.NewReference(), nil, 16)
	go w.Run()

	var mu sync.Mutex
	var events []*parser.Event
	var notParsed []string
	unsubEvents := w.SubscribeEvents(func(ev *parser.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	unsubNotParsed := w.SubscribeNotParsed(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		notParsed = append(notParsed, line)
	})

	w.In <- "Pilot1 has connected"
	w.In <- "this line matches nothing"
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1 && len(notParsed) == 1
	}, time.Second, time.Millisecond)

	unsubEvents()
	unsubEvents() // idempotent
	unsubNotParsed()

	w.In <- "Pilot2 has connected"
	w.In <- "another unmatched line"
	close(w.In)
	w.WaitStopped()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "Pilot1", events[0].Actor)
	require.Len(t, notParsed, 1)
	assert.Equal(t, "this line matches nothing", notParsed[0])
}

type failingParser struct{}

func (failingParser) Parse(line string) (*parser.Event, error) {
	return nil, assertError{}
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestWorker_WaitStoppedReturnsAfterClose(t *testing.T) {
	w := New(parser.NewReference(), nil, 4)
	go w.Run()
	close(w.In)

	done := make(chan struct{})
	go func() {
		w.WaitStopped()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitStopped did not return")
	}
}
