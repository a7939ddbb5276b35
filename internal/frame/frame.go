// Package frame implements the DS byte-stream line framer described in
// spec.md §4.1: it carves a character stream into newline-terminated lines
// and numeric-prompt tokens ("12>").
package frame

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/il2fb-go/airbridge/internal/airerr"
)

// ErrStreamClosedPrematurely is returned by Driver.UntilLine when the
// stream reaches EOF before the stop line is seen.
var ErrStreamClosedPrematurely = fmt.Errorf("frame: %w", airerr.ErrStreamClosedPrematurely)

// Kind distinguishes the two token variants a Framer emits.
type Kind int

const (
	// KindLine is a run of characters up to (and not including) a newline.
	KindLine Kind = iota
	// KindPrompt is a run of decimal digits immediately followed by '>'.
	KindPrompt
)

// Token is one unit carved out of the byte stream.
type Token struct {
	Kind   Kind
	Line   string // valid when Kind == KindLine
	Prompt int    // valid when Kind == KindPrompt
}

// Framer accumulates characters and emits Tokens per spec.md §4.1.
type Framer struct {
	acc []byte
}

// NewFramer returns a Framer with an empty accumulator.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed processes one decoded character. It returns the emitted token, or
// (Token{}, false) if the character was merely buffered.
func (f *Framer) Feed(ch byte) (Token, bool) {
	if ch == '\n' {
		tok := Token{Kind: KindLine, Line: string(f.acc)}
		f.acc = f.acc[:0]
		return tok, true
	}

	if ch == '>' {
		if n, ok := parseNonNegativeInt(f.acc); ok {
			tok := Token{Kind: KindPrompt, Prompt: n}
			f.acc = f.acc[:0]
			return tok, true
		}
	}

	f.acc = append(f.acc, ch)
	return Token{}, false
}

// Flush emits any buffered characters as a Line, if non-empty. Call this
// once on EOF.
func (f *Framer) Flush() (Token, bool) {
	if len(f.acc) == 0 {
		return Token{}, false
	}
	tok := Token{Kind: KindLine, Line: string(f.acc)}
	f.acc = nil
	return tok, true
}

func parseNonNegativeInt(chars []byte) (int, bool) {
	if len(chars) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(chars))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Handler receives a single emitted Token.
type Handler func(Token)

// Driver runs a Framer over an io.Reader, one byte at a time, matching the
// original's read(1)-per-iteration approach exactly (the DS stream is
// small and interactive; throughput is not a concern here).
type Driver struct {
	r *bufio.Reader
	f *Framer
}

// NewDriver wraps r for framing. r is read one byte at a time.
func NewDriver(r io.Reader) *Driver {
	return &Driver{r: bufio.NewReader(r), f: NewFramer()}
}

// UntilLine runs the framer until a Line token equal to stopLine is
// observed. At that point it feeds inputLine and stopLine to handler (in
// that order, as the original DS boot handshake echoes what was written to
// stdin), keeps running until the next Prompt token is emitted, and
// returns. Every other token along the way is also delivered to handler.
//
// Returns ErrStreamClosedPrematurely if EOF is reached before stopLine.
func (d *Driver) UntilLine(inputLine, stopLine string, handler Handler) error {
	sawStop := false

	for {
		b, err := d.r.ReadByte()
		if err != nil {
			if sawStop {
				// EOF while waiting for the post-stop prompt is not an
				// error per spec.md §4.1; the caller already got what it
				// needed from the handshake.
				return nil
			}
			return ErrStreamClosedPrematurely
		}

		tok, emitted := d.f.Feed(b)
		if !emitted {
			continue
		}

		if !sawStop && tok.Kind == KindLine && tok.Line == stopLine {
			sawStop = true
			if handler != nil {
				handler(Token{Kind: KindLine, Line: inputLine})
				handler(Token{Kind: KindLine, Line: stopLine})
			}
			continue
		}

		if handler != nil {
			handler(tok)
		}

		if sawStop && tok.Kind == KindPrompt {
			return nil
		}
	}
}

// UntilEnd runs the framer until EOF, delivering every token to handler.
// Residual buffered bytes at EOF are flushed as a final Line.
func (d *Driver) UntilEnd(handler Handler) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			break
		}
		if tok, emitted := d.f.Feed(b); emitted && handler != nil {
			handler(tok)
		}
	}
	if tok, ok := d.f.Flush(); ok && handler != nil {
		handler(tok)
	}
}
