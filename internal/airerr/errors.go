// Package airerr collects the sentinel errors from the error taxonomy (§7):
// BadInput, Timeout, StreamClosedPrematurely, PortsNotOpen, ConnectionAborted,
// SinkFailure and Internal. Components wrap these with fmt.Errorf("...: %w")
// rather than defining their own error types, matching the plain
// errors/fmt-based style used throughout the teacher's codebase.
package airerr

import "errors"

var (
	ErrBadInput                = errors.New("bad input")
	ErrTimeout                 = errors.New("timeout")
	ErrStreamClosedPrematurely = errors.New("stream closed prematurely")
	ErrPortsNotOpen            = errors.New("ports not open")
	ErrConnectionAborted       = errors.New("connection aborted")
	ErrSinkFailure             = errors.New("sink failure")
	ErrInternal                = errors.New("internal error")
)
