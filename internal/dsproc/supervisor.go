package dsproc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/il2fb-go/airbridge/internal/airerr"
	"github.com/il2fb-go/airbridge/internal/frame"
)

// ErrPortsNotOpen is returned by WaitNetworkListeners when the deadline
// elapses before every configured port is observed in LISTEN state.
var ErrPortsNotOpen = fmt.Errorf("dsproc: %w", airerr.ErrPortsNotOpen)

// ErrNotStarted is returned by operations that require a running process.
var ErrNotStarted = errors.New("dsproc: process not started")

// Process supervises one DS child process instance.
type Process struct {
	cfg    Config
	lister PortLister

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started bool

	done chan struct{}
	exit error
}

// New returns a Process ready to Start. lister may be nil, in which case
// NewLinuxPortLister is used.
func New(cfg Config, lister PortLister) *Process {
	if lister == nil {
		lister = NewLinuxPortLister()
	}
	return &Process{cfg: cfg, lister: lister, done: make(chan struct{})}
}

// Start spawns the DS process, drives the boot handshake to completion (it
// writes "host\n" to stdin and blocks until the reply line and the
// subsequent prompt are seen, per spec.md §4.1/§4.2), and begins fanning
// stdout/stderr out through the line framer in background goroutines.
//
// Start returns once the boot handshake completes or fails; it does not
// wait for the process to exit. Use WaitFinished for that.
func (p *Process) Start(ctx context.Context) error {
	argv := buildArgv(p.cfg)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.SysProcAttr = newSysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("dsproc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("dsproc: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("dsproc: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("dsproc: start: %w", err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.mu.Unlock()

	bootDriver := frame.NewDriver(stdout)
	if _, err := io.WriteString(stdin, bootInputLine+"\n"); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("dsproc: write boot handshake: %w", err)
	}

	handshakeErr := bootDriver.UntilLine(bootInputLine, bootStopLine, func(tok frame.Token) {
		p.dispatch(tok)
	})
	if handshakeErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("dsproc: boot handshake: %w", handshakeErr)
	}

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	go func() {
		bootDriver.UntilEnd(func(tok frame.Token) { p.dispatch(tok) })
	}()
	go func() {
		errDriver := frame.NewDriver(bufio.NewReader(stderr))
		errDriver.UntilEnd(func(tok frame.Token) {
			if tok.Kind == frame.KindLine && p.cfg.StderrHandler != nil {
				p.cfg.StderrHandler(tok.Line)
			}
		})
	}()
	go func() {
		waitErr := cmd.Wait()
		p.mu.Lock()
		p.exit = waitErr
		p.mu.Unlock()
		close(p.done)
	}()

	return nil
}

func (p *Process) dispatch(tok frame.Token) {
	switch tok.Kind {
	case frame.KindLine:
		if p.cfg.StdoutHandler != nil {
			p.cfg.StdoutHandler(tok.Line)
		}
	case frame.KindPrompt:
		if p.cfg.PromptHandler != nil {
			p.cfg.PromptHandler(tok.Prompt)
		}
	}
}

// WaitNetworkListeners polls the DS's PID with the configured PortLister
// until ConnectionPort, ConsolePort and DeviceLinkPort are all observed in
// LISTEN state, or timeout elapses. pollPeriod of zero uses
// DefaultPollPeriod. Returns ErrPortsNotOpen on timeout.
func (p *Process) WaitNetworkListeners(timeout, pollPeriod time.Duration) error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return ErrNotStarted
	}
	if pollPeriod <= 0 {
		pollPeriod = DefaultPollPeriod
	}

	want := []int{p.cfg.ConnectionPort, p.cfg.ConsolePort, p.cfg.DeviceLinkPort}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()

	for {
		open, err := p.lister.ListeningPorts(cmd.Process.Pid)
		if err == nil {
			allOpen := true
			for _, port := range want {
				if port == 0 {
					continue
				}
				if _, ok := open[port]; !ok {
					allOpen = false
					break
				}
			}
			if allOpen {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return ErrPortsNotOpen
		}
		<-ticker.C
	}
}

// Input writes s, followed by a newline, to the DS's stdin. This mirrors
// the original's console-command injection path (spec.md §4.2).
func (p *Process) Input(s string) error {
	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return ErrNotStarted
	}
	_, err := io.WriteString(stdin, s+"\n")
	return err
}

// AskExit sends the DS's own graceful-shutdown console command ("exit"),
// per spec.md §4.2, rather than killing the process directly.
func (p *Process) AskExit() error {
	return p.Input("exit")
}

// Terminate forcibly kills the DS process. Callers should prefer AskExit
// and fall back to Terminate only after a grace period elapses.
func (p *Process) Terminate() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}
	return cmd.Process.Kill()
}

// WaitFinished blocks until the DS process has exited, or ctx is canceled.
// It returns the process's exit error, if any.
func (p *Process) WaitFinished(ctx context.Context) error {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.exit
	case <-ctx.Done():
		return ctx.Err()
	}
}
