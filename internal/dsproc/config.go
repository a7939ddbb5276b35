// Package dsproc supervises the dedicated-server (DS) child process: it
// spawns it, drives the boot handshake over stdout/stdin, waits for its
// network listeners to come up, fans stdout/stderr out through the line
// framer, and coordinates orderly shutdown. Grounded on
// dedicated_server/process.py and dedicated_server/instance.py from the
// original implementation, reworked as goroutines + channels per
// spec.md §9 ("async-everywhere with thread bridges" -> native
// concurrency primitives).
package dsproc

import "time"

// Config describes how to launch the DS and which ports it must open.
type Config struct {
	// WineBinPath is prepended to the argv on non-Windows per spec.md §6.
	// Ignored on Windows.
	WineBinPath string
	ExePath     string
	ConfigPath  string
	StartScript string

	// ConnectionPort, ConsolePort and DeviceLinkPort are the three inet
	// listeners wait_network_listeners polls for, read from the DS's own
	// (externally parsed) ini configuration per spec.md §4.2.
	ConnectionPort int
	ConsolePort    int
	DeviceLinkPort int

	// StdoutHandler/PromptHandler receive framed stdout tokens, including
	// those seen during the boot handshake; StderrHandler receives stderr
	// lines once boot completes. Stderr is drained and discarded if
	// StderrHandler is nil (so the DS never blocks writing to it), per
	// spec.md §4.2 invariants.
	StdoutHandler func(line string)
	StderrHandler func(line string)
	PromptHandler func(prompt int)
}

// bootInputLine/bootStopLine are the literal DS boot handshake tokens from
// spec.md §6 ("Writing `host\n` to stdin causes the DS to reply with
// `localhost: Server\n`"). Compared against frame.Token.Line, which never
// carries the trailing delimiter (spec.md §3); the delimiter is only
// present in the bytes actually written to stdin.
const (
	bootInputLine = "host"
	bootStopLine  = "localhost: Server"
)

// DefaultPollPeriod is used by WaitNetworkListeners when the caller passes
// zero.
const DefaultPollPeriod = 200 * time.Millisecond
