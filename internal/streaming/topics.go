package streaming

import (
	"context"

	"go.uber.org/zap"

	"github.com/il2fb-go/airbridge/internal/airtypes"
	"github.com/il2fb-go/airbridge/internal/gamelog"
	"github.com/il2fb-go/airbridge/internal/parser"
)

// ChatEvent is the payload chat subscribers receive, the Go shape of the
// original's opaque chat-event dict.
type ChatEvent struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// ChatTap is satisfied by an adapter over the upstream console client's
// chat subscription (§4.3 subscribe_to_chat). It is an interface here so the
// facility can be built and tested without a real console connection.
type ChatTap interface {
	SubscribeChat(func(ChatEvent)) (unsubscribe func())
}

// NewChat wires a Facility whose upstream tap is the console client's chat
// subscription, attached only while at least one sink is subscribed.
func NewChat(ctx context.Context, log *zap.SugaredLogger, console ChatTap) *Facility {
	f := New("chat", log, 256)

	var unsubscribe func()
	f.BeforeFirstSubscriber = func() {
		unsubscribe = console.SubscribeChat(func(ev ChatEvent) {
			f.Publish(airtypes.New(airtypes.KindChatEvent, ev))
		})
	}
	f.AfterLastSubscriber = func() {
		if unsubscribe != nil {
			unsubscribe()
			unsubscribe = nil
		}
	}

	f.Start(ctx)
	return f
}

// ConnectionEventTap is satisfied by the upstream console client (§4.3
// subscribe_to_human_connection_events).
type ConnectionEventTap interface {
	SubscribeHumanConnectionEvents(func(*parser.Event)) (unsubscribe func())
}

// NewEvents wires a Facility fed by two upstream taps: the console's
// authoritative human-connection events, and the game-log worker's general
// event stream with HumanConnected/HumanDisconnected suppressed to avoid
// double delivery (§3 Event, §8 invariant 4; grounded on
// EventsStreamingFacility._consume_game_log_event).
func NewEvents(ctx context.Context, log *zap.SugaredLogger, console ConnectionEventTap, worker *gamelog.Worker) *Facility {
	f := New("events", log, 256)

	var unsubConsole, unsubWorker func()
	f.BeforeFirstSubscriber = func() {
		unsubConsole = console.SubscribeHumanConnectionEvents(func(ev *parser.Event) {
			f.Publish(airtypes.New(airtypes.KindGameEvent, ev))
		})
		unsubWorker = worker.SubscribeEvents(func(ev *parser.Event) {
			if ev.Kind == parser.EventHumanConnected || ev.Kind == parser.EventHumanDisconnected {
				return
			}
			f.Publish(airtypes.New(airtypes.KindGameEvent, ev))
		})
	}
	f.AfterLastSubscriber = func() {
		if unsubConsole != nil {
			unsubConsole()
			unsubConsole = nil
		}
		if unsubWorker != nil {
			unsubWorker()
			unsubWorker = nil
		}
	}

	f.Start(ctx)
	return f
}

// NewNotParsed wires a Facility fed by the game-log worker's not-parsed
// string stream.
func NewNotParsed(ctx context.Context, log *zap.SugaredLogger, worker *gamelog.Worker) *Facility {
	f := New("not_parsed_strings", log, 256)

	var unsubWorker func()
	f.BeforeFirstSubscriber = func() {
		unsubWorker = worker.SubscribeNotParsed(func(line string) {
			f.Publish(airtypes.New(airtypes.KindNotParsedString, line))
		})
	}
	f.AfterLastSubscriber = func() {
		if unsubWorker != nil {
			unsubWorker()
			unsubWorker = nil
		}
	}

	f.Start(ctx)
	return f
}
