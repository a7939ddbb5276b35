package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/il2fb-go/airbridge/internal/airtypes"
)

// FileSink appends one JSON line per item to a file, matching
// streaming/subscribers/file.py's JSONFileStreamingSink. It detects log
// rotation the same way the watchdog does (device/inode change) and
// reopens transparently.
type FileSink struct {
	Path string

	mu   sync.Mutex
	f    *os.File
	dev  uint64
	ino  uint64
	done chan struct{}
}

// NewFileSink returns a FileSink appending to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path, done: make(chan struct{})}
}

// NewFileSinkFromArgs builds a FileSink from the {args: {path: ...}}
// shortcut-registry shape described in §6.
func NewFileSinkFromArgs(args map[string]any) (Sink, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("sink: file sink requires a \"path\" arg")
	}
	return NewFileSink(path), nil
}

func init() {
	Register("file", NewFileSinkFromArgs)
}

func (s *FileSink) maybeReopen() error {
	info, err := os.Stat(s.Path)
	dev, ino := uint64(0), uint64(0)
	if err == nil {
		dev, ino = statDeviceInode(info)
	}

	if s.f != nil && err == nil && dev == s.dev && ino == s.ino {
		return nil
	}

	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}

	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("sink: open %s: %w", s.Path, err)
	}
	info, err = f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("sink: stat %s: %w", s.Path, err)
	}
	s.f = f
	s.dev, s.ino = statDeviceInode(info)
	return nil
}

// Write serializes item as one JSON line and appends it, reopening the
// file first if it was rotated out from under the sink.
func (s *FileSink) Write(_ context.Context, item airtypes.TimestampedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.maybeReopen(); err != nil {
		return err
	}

	enc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("sink: encode: %w", err)
	}
	enc = append(enc, '\n')
	if _, err := s.f.Write(enc); err != nil {
		return fmt.Errorf("sink: write %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileSink) PlugIn(context.Context) error { return s.maybeReopen() }

func (s *FileSink) Unplug(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}

func (s *FileSink) WaitUnplugged() { <-s.done }
