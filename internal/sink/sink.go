// Package sink defines the narrow subscriber capability every streaming
// facility writes into (§9 "dynamic dispatch of sinks via plugin
// registry") and the concrete sinks registered under the shortcut names
// from §6 ("a mapping {shortcut_name: {...}} where shortcut_name in
// {file, bus}"). Grounded on streaming/subscribers/base.py's abstract
// StreamingSubscriber and streaming/subscribers.py's CLASS_NAMES_SHORTCUTS
// registry.
package sink

import (
	"context"
	"fmt"

	"github.com/il2fb-go/airbridge/internal/airtypes"
)

// Sink is the capability a streaming facility depends on. PlugIn/Unplug are
// optional lifecycle hooks (a bus sink uses them to start/stop its
// publish worker, the file sink to open and close its file); sinks with no
// lifecycle needs can make them no-ops.
type Sink interface {
	Write(ctx context.Context, item airtypes.TimestampedData) error
	PlugIn(ctx context.Context) error
	Unplug(ctx context.Context) error
	WaitUnplugged()
}

// Factory builds a Sink from its config args, as load_subscriber does in
// the source via pydoc.locate.
type Factory func(args map[string]any) (Sink, error)

var registry = map[string]Factory{}

// Register adds a shortcut name to the registry. Called from each concrete
// sink package's init, or explicitly by cmd/airbridge wiring.
func Register(shortcut string, f Factory) {
	registry[shortcut] = f
}

// Load builds a Sink for shortcut using its registered Factory.
func Load(shortcut string, args map[string]any) (Sink, error) {
	f, ok := registry[shortcut]
	if !ok {
		return nil, fmt.Errorf("sink: unknown shortcut %q", shortcut)
	}
	return f(args)
}
