package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/il2fb-go/airbridge/internal/gamelog"
	"github.com/il2fb-go/airbridge/internal/parser"
)

type fakeChatTap struct {
	subscribed   bool
	unsubscribed bool
	emit         func(ChatEvent)
}

func (f *fakeChatTap) SubscribeChat(h func(ChatEvent)) func() {
	f.subscribed = true
	f.emit = h
	return func() { f.unsubscribed = true }
}

func TestNewChat_AttachesOnFirstSubscribeDetachesOnLast(t *testing.T) {
	tap := &fakeChatTap{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewChat(ctx, nil, tap)
	assert.False(t, tap.subscribed)

	sk := &collectingSink{}
	f.Subscribe(sk)
	assert.True(t, tap.subscribed)

	tap.emit(ChatEvent{From: "Pilot1", Message: "hi"})
	require.Eventually(t, func() bool { return sk.count() == 1 }, time.Second, time.Millisecond)

	f.Unsubscribe(sk)
	assert.True(t, tap.unsubscribed)

	f.Stop()
	f.WaitStopped()
}

type fakeConnTap struct {
	emit func(*parser.Event)
}

func (f *fakeConnTap) SubscribeHumanConnectionEvents(h func(*parser.Event)) func() {
	f.emit = h
	return func() {}
}

func TestNewEvents_SuppressesConnectionEventsFromGameLog(t *testing.T) {
	tap := &fakeConnTap{}
	worker := gamelog.New(parser.NewReference(), nil, 16)
	go worker.Run()
	defer func() {
		close(worker.In)
		worker.WaitStopped()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewEvents(ctx, nil, tap, worker)
	sk := &collectingSink{}
	f.Subscribe(sk)

	worker.In <- "Pilot1 has connected" // suppressed: console is authoritative
	worker.In <- "T:1 some other event"
	require.Eventually(t, func() bool { return sk.count() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, sk.count())

	f.Stop()
	f.WaitStopped()
}

func TestNewEvents_ChurnDoesNotDoubleDispatch(t *testing.T) {
	tap := &fakeConnTap{}
	worker := gamelog.New(parser.NewReference(), nil, 16)
	go worker.Run()
	defer func() {
		close(worker.In)
		worker.WaitStopped()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewEvents(ctx, nil, tap, worker)

	sk1 := &collectingSink{}
	f.Subscribe(sk1)
	f.Unsubscribe(sk1) // drops to zero subscribers, detaching the worker tap

	sk2 := &collectingSink{}
	f.Subscribe(sk2) // re-attaches the worker tap exactly once

	worker.In <- "T:1 some other event"
	require.Eventually(t, func() bool { return sk2.count() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, sk2.count())

	f.Stop()
	f.WaitStopped()
}

func TestNewNotParsed_ForwardsUnparsedLines(t *testing.T) {
	worker := gamelog.New(parser.NewReference(), nil, 16)
	go worker.Run()
	defer func() {
		close(worker.In)
		worker.WaitStopped()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewNotParsed(ctx, nil, worker)
	sk := &collectingSink{}
	f.Subscribe(sk)

	worker.In <- "nobody understands this"
	require.Eventually(t, func() bool { return sk.count() == 1 }, time.Second, time.Millisecond)

	f.Stop()
	f.WaitStopped()
}
