// Package state loads and saves the persisted application state file
// (§6 "Persisted state (YAML)"). Only the game_log_watch_dog key is
// understood; everything else round-trips through an opaque map so a
// richer, future state file is never clobbered by this core.
package state

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WatchdogState is the {device, inode, offset} tuple persisted across
// restarts so the watchdog can resume tailing without duplicating or
// skipping lines (§3 WatchdogState, §8 S6).
type WatchdogState struct {
	Device uint64 `yaml:"device"`
	Inode  uint64 `yaml:"inode"`
	Offset int64  `yaml:"offset"`
}

const watchdogKey = "game_log_watch_dog"

// State is the full persisted document. Unrecognized top-level keys are
// kept in Extra and re-emitted verbatim on Save.
type State struct {
	Watchdog WatchdogState
	Extra    map[string]any
}

// Load reads path and parses it. A missing file yields a zero-valued State
// (this is the common case on first run) rather than an error.
func Load(path string) (*State, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{Extra: map[string]any{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	s := &State{Extra: doc}
	if wd, ok := doc[watchdogKey]; ok {
		node, err := yaml.Marshal(wd)
		if err != nil {
			return nil, fmt.Errorf("state: re-encode %s: %w", watchdogKey, err)
		}
		if err := yaml.Unmarshal(node, &s.Watchdog); err != nil {
			return nil, fmt.Errorf("state: decode %s: %w", watchdogKey, err)
		}
		delete(s.Extra, watchdogKey)
	}

	return s, nil
}

// Save writes the document back out, with the watchdog state folded in
// alongside whatever unrecognized keys were loaded.
func (s *State) Save(path string) error {
	doc := make(map[string]any, len(s.Extra)+1)
	for k, v := range s.Extra {
		doc[k] = v
	}
	doc[watchdogKey] = s.Watchdog

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", path, err)
	}
	return nil
}
