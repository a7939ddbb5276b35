// Package watchdog tails an append-only text file from a dedicated OS
// thread (goroutine), surviving rotation/truncation, and resuming from a
// persisted {device, inode, offset} tuple. Grounded on watch_dog.py's
// TextFileWatchDog: a polling loop that stats the file, detects
// device/inode changes, and reads newly appended lines with Seek/Read
// rather than a filesystem-notification API (matching the original's
// polling design, which this core's §4.7 models as an external
// "line producer" thread).
package watchdog

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/il2fb-go/airbridge/internal/state"
)

// LineHandler is invoked from the watcher goroutine for every newly
// appended, newline-stripped line (§4.7 subscribe(line_cb)).
type LineHandler func(line string)

// Watchdog tails Path, starting from an optionally-persisted state.
type Watchdog struct {
	Path       string
	PollPeriod time.Duration
	Clock      clock.Clock

	mu          sync.Mutex
	subscribers []LineHandler
	st          state.WatchdogState

	stop chan struct{}
	done chan struct{}
}

// New returns a Watchdog over path, resuming from initial (zero value is
// fine for a first run).
func New(path string, initial state.WatchdogState) *Watchdog {
	return &Watchdog{
		Path:       path,
		PollPeriod: 500 * time.Millisecond,
		Clock:      clock.New(),
		st:         initial,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Subscribe registers a callback for appended lines. Not safe to call once
// Run has started except from within a handler.
func (w *Watchdog) Subscribe(h LineHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, h)
}

// State returns the current {device, inode, offset}, suitable for
// persisting on shutdown.
func (w *Watchdog) State() state.WatchdogState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st
}

func (w *Watchdog) emit(line string) {
	w.mu.Lock()
	subs := append([]LineHandler(nil), w.subscribers...)
	w.mu.Unlock()
	for _, h := range subs {
		h(line)
	}
}

// Run polls Path until Stop is called, emitting appended lines as they
// arrive. It is meant to run in its own goroutine, as the original runs its
// watchdog in its own OS thread.
func (w *Watchdog) Run() {
	defer close(w.done)

	var f *os.File
	var reader *bufio.Reader
	var consumed int64 // bytes consumed from the reader since f was opened

	closeCurrent := func() {
		if f != nil {
			_ = f.Close()
			f = nil
			reader = nil
		}
	}
	defer closeCurrent()

	ticker := w.Clock.Ticker(w.pollPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		info, err := os.Stat(w.Path)
		if err != nil {
			// File disappeared: reset offset, wait for it to reappear.
			closeCurrent()
			w.mu.Lock()
			w.st.Offset = 0
			w.mu.Unlock()
			continue
		}

		dev, ino := deviceInode(info)

		w.mu.Lock()
		rotated := f == nil || dev != w.st.Device || ino != w.st.Inode
		w.mu.Unlock()

		if rotated {
			closeCurrent()
			opened, err := os.Open(w.Path)
			if err != nil {
				continue
			}
			f = opened

			w.mu.Lock()
			if dev != w.st.Device || ino != w.st.Inode {
				w.st.Offset = 0
			}
			w.st.Device = dev
			w.st.Inode = ino
			offset := w.st.Offset
			w.mu.Unlock()

			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				w.mu.Lock()
				w.st.Offset = 0
				w.mu.Unlock()
				_, _ = f.Seek(0, io.SeekStart)
				offset = 0
			}
			reader = bufio.NewReader(f)
			consumed = offset
		}

		newConsumed, newReader := w.readAvailableLines(f, reader, consumed)
		consumed, reader = newConsumed, newReader
	}
}

// readAvailableLines drains every complete line currently available,
// leaving a trailing partial line (if any) unconsumed for the next poll by
// rewinding the file to the last confirmed line boundary and handing back
// a fresh reader positioned there. It returns the updated consumed-byte
// offset (also the value persisted for resume) and the reader to use on
// the next call.
func (w *Watchdog) readAvailableLines(f *os.File, reader *bufio.Reader, consumed int64) (int64, *bufio.Reader) {
	if reader == nil {
		return consumed, reader
	}
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			if len(line) > 0 {
				// Partial trailing line: rewind to the last full-line
				// boundary so the next poll re-reads it once complete.
				if _, seekErr := f.Seek(consumed, io.SeekStart); seekErr == nil {
					reader = bufio.NewReader(f)
				}
			}
			return consumed, reader
		}
		if err != nil {
			return consumed, reader
		}
		consumed += int64(len(line))
		w.mu.Lock()
		w.st.Offset = consumed
		w.mu.Unlock()
		w.emit(trimTrailingNewline(line))
	}
}

func (w *Watchdog) pollPeriod() time.Duration {
	if w.PollPeriod <= 0 {
		return 500 * time.Millisecond
	}
	return w.PollPeriod
}

func trimTrailingNewline(s string) string {
	n := len(s)
	if n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}

// Stop makes Run return; a poll already in progress finishes first.
func (w *Watchdog) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

// WaitStopped blocks until Run has returned.
func (w *Watchdog) WaitStopped() {
	<-w.done
}
