// Package supervisor wires every other package together into the Airbridge
// process: it owns the DS child process, the upstream console and
// device-link clients, the streaming facilities, both proxies, the
// game-log worker and watchdog, and the optional bus connection, and
// enforces the start/stop ordering from §4.12. Grounded on application.py's
// Airbridge class.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/il2fb-go/airbridge/internal/bus"
	"github.com/il2fb-go/airbridge/internal/config"
	"github.com/il2fb-go/airbridge/internal/console"
	"github.com/il2fb-go/airbridge/internal/consoleproxy"
	"github.com/il2fb-go/airbridge/internal/devicelink"
	"github.com/il2fb-go/airbridge/internal/devicelinkproxy"
	"github.com/il2fb-go/airbridge/internal/dsproc"
	"github.com/il2fb-go/airbridge/internal/gamelog"
	"github.com/il2fb-go/airbridge/internal/parser"
	"github.com/il2fb-go/airbridge/internal/radar"
	"github.com/il2fb-go/airbridge/internal/sink"
	"github.com/il2fb-go/airbridge/internal/state"
	"github.com/il2fb-go/airbridge/internal/streaming"
	"github.com/il2fb-go/airbridge/internal/watchdog"
)

// Supervisor owns every subsystem's lifecycle for one Airbridge run.
type Supervisor struct {
	cfg *config.Config
	log *zap.SugaredLogger

	ds         *dsproc.Process
	consoleCli *console.Client
	dlCli      *devicelink.Client
	busClient  *bus.Client

	consoleProxy *consoleproxy.Proxy
	dlProxy      *devicelinkproxy.Proxy

	chat      *streaming.Facility
	events    *streaming.Facility
	notParsed *streaming.Facility
	radar     *radar.Facility

	gamelogWorker *gamelog.Worker
	wd            *watchdog.Watchdog

	statePath string
}

// New returns a Supervisor for cfg.
func New(cfg *config.Config, log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{cfg: cfg, log: log, statePath: cfg.StatePath}
}

// chatTap adapts the console client's chat subscription, which delivers
// console.ChatEvent, to streaming.ChatTap, which takes streaming.ChatEvent.
type chatTap struct{ c *console.Client }

func (t chatTap) SubscribeChat(h func(streaming.ChatEvent)) func() {
	return t.c.SubscribeChat(func(ev console.ChatEvent) {
		h(streaming.ChatEvent(ev))
	})
}

// Start runs the startup steps numbered after §4.12 in the comments below.
// Each step blocks until its precondition holds before the next begins. The
// game-log worker (8a) is started before the facilities (7), and the
// facilities are started before their configured sinks are subscribed (6).
// No stdin listener (step 3) and no HTTP or bus API (step 10) is started.
func (s *Supervisor) Start(ctx context.Context) error {
	// 1-2: spawn DS, complete boot handshake, poll its listeners.
	s.ds = dsproc.New(dsproc.Config{
		WineBinPath:    s.cfg.DS.WineBinPath,
		ExePath:        s.cfg.DS.ExePath,
		ConfigPath:     s.cfg.DS.ConfigPath,
		StartScript:    s.cfg.DS.StartScript,
		ConnectionPort: s.cfg.DS.ConnectionPort,
		ConsolePort:    s.cfg.DS.ConsolePort,
		DeviceLinkPort: s.cfg.DS.DeviceLinkPort,
		StdoutHandler:  func(line string) { s.log.Debugw("ds stdout", "line", line) },
		StderrHandler:  func(line string) { s.log.Warnw("ds stderr", "line", line) },
		PromptHandler:  func(p int) { s.log.Debugw("ds prompt", "value", p) },
	}, nil)

	if err := s.ds.Start(ctx); err != nil {
		return fmt.Errorf("supervisor: ds start: %w", err)
	}
	if err := s.ds.WaitNetworkListeners(s.cfg.BootTimeout(), dsproc.DefaultPollPeriod); err != nil {
		_ = s.ds.Terminate()
		return fmt.Errorf("supervisor: ds listeners: %w", err)
	}

	// 4: connect upstream clients.
	consoleAddr := fmt.Sprintf("%s:%d", s.cfg.DS.Host, s.cfg.DS.ConsolePort)
	consoleCli, err := console.Dial(consoleAddr)
	if err != nil {
		return fmt.Errorf("supervisor: console dial: %w", err)
	}
	s.consoleCli = consoleCli

	dlAddr := fmt.Sprintf("%s:%d", s.cfg.DS.Host, s.cfg.DS.DeviceLinkPort)
	dlCli, err := devicelink.Dial(dlAddr)
	if err != nil {
		return fmt.Errorf("supervisor: device-link dial: %w", err)
	}
	s.dlCli = dlCli

	// 5: optionally connect the messaging bus.
	if s.cfg.Bus.Enabled {
		busCli, err := bus.Connect(s.cfg.Bus.URLs, s.log.Named("bus"))
		if err != nil {
			return fmt.Errorf("supervisor: bus connect: %w", err)
		}
		busCli.UseAsDefault()
		s.busClient = busCli
	}

	// 8a: start the game-log worker goroutine before facilities subscribe
	// to it, so their BeforeFirstSubscriber hooks have something to attach
	// to.
	s.gamelogWorker = gamelog.New(parser.NewReference(), s.log.Named("gamelog"), 1024)
	go s.gamelogWorker.Run()

	// 7: start every facility.
	s.chat = streaming.NewChat(ctx, s.log.Named("chat"), chatTap{s.consoleCli})
	s.events = streaming.NewEvents(ctx, s.log.Named("events"), s.consoleCli, s.gamelogWorker)
	s.notParsed = streaming.NewNotParsed(ctx, s.log.Named("not_parsed"), s.gamelogWorker)
	s.radar = radar.New(s.dlCli, s.log.Named("radar"))
	s.radar.Start(ctx)

	// 6: plug in statically-configured sinks and subscribe them.
	if err := s.wireSinks(ctx); err != nil {
		return fmt.Errorf("supervisor: wire sinks: %w", err)
	}

	// 8b: start the watchdog thread, resuming from persisted state.
	st, err := state.Load(s.statePath)
	if err != nil {
		return fmt.Errorf("supervisor: load state: %w", err)
	}
	s.wd = watchdog.New(s.cfg.GameLogPath, st.Watchdog)
	s.wd.Subscribe(func(line string) {
		select {
		case s.gamelogWorker.In <- line:
		default:
			s.log.Warnw("gamelog queue full, dropping line")
		}
	})
	go s.wd.Run()

	// 9: optionally start proxies.
	if s.cfg.ConsoleProxy.Enabled {
		s.consoleProxy = consoleproxy.New(s.cfg.ConsoleProxy.BindAddr, s.consoleCli, s.log.Named("consoleproxy"))
		if err := s.consoleProxy.Start(); err != nil {
			return fmt.Errorf("supervisor: console proxy: %w", err)
		}
	}
	if s.cfg.DeviceLinkProxy.Enabled {
		s.dlProxy = devicelinkproxy.New(s.cfg.DeviceLinkProxy.BindAddr, s.dlCli, s.log.Named("dlproxy"))
		if err := s.dlProxy.Start(); err != nil {
			return fmt.Errorf("supervisor: device-link proxy: %w", err)
		}
	}

	return nil
}

func (s *Supervisor) wireSinks(ctx context.Context) error {
	attach := func(cfgs []config.SinkConfig, facility *streaming.Facility) error {
		for _, sc := range cfgs {
			sk, err := sink.Load(sc.Shortcut, sc.Args)
			if err != nil {
				return err
			}
			if err := sk.PlugIn(ctx); err != nil {
				return err
			}
			facility.Subscribe(sk)
		}
		return nil
	}

	if err := attach(s.cfg.Sinks.Chat, s.chat); err != nil {
		return err
	}
	if err := attach(s.cfg.Sinks.Events, s.events); err != nil {
		return err
	}
	if err := attach(s.cfg.Sinks.NotParsed, s.notParsed); err != nil {
		return err
	}

	for _, sc := range s.cfg.Sinks.Radar {
		sk, err := sink.Load(sc.Shortcut, sc.Args)
		if err != nil {
			return err
		}
		if err := sk.PlugIn(ctx); err != nil {
			return err
		}
		period := 5 * time.Second
		if v, ok := sc.SubscriptionOptions["refresh_period"]; ok {
			if secs, ok := v.(float64); ok && secs > 0 {
				period = time.Duration(secs * float64(time.Second))
			}
		}
		s.radar.Subscribe(sk, period)
	}

	return nil
}

// Stop tears everything down in reverse start order, per §4.12.
func (s *Supervisor) Stop(ctx context.Context) {
	if s.consoleProxy != nil {
		s.consoleProxy.Stop()
	}
	if s.dlProxy != nil {
		s.dlProxy.Stop()
	}

	if s.wd != nil {
		s.wd.Stop()
		s.wd.WaitStopped()
		if st, err := state.Load(s.statePath); err == nil {
			st.Watchdog = s.wd.State()
			if err := st.Save(s.statePath); err != nil {
				s.log.Warnw("failed to persist watchdog state", "error", err)
			}
		}
	}

	if s.gamelogWorker != nil {
		close(s.gamelogWorker.In)
		s.gamelogWorker.WaitStopped()
	}

	var g errgroup.Group
	if s.chat != nil {
		g.Go(func() error { s.chat.Stop(); s.chat.WaitStopped(); return nil })
	}
	if s.events != nil {
		g.Go(func() error { s.events.Stop(); s.events.WaitStopped(); return nil })
	}
	if s.notParsed != nil {
		g.Go(func() error { s.notParsed.Stop(); s.notParsed.WaitStopped(); return nil })
	}
	if s.radar != nil {
		g.Go(func() error { s.radar.Stop(); s.radar.WaitStopped(); return nil })
	}
	_ = g.Wait()

	if s.busClient != nil {
		s.busClient.Close()
	}

	if s.consoleCli != nil {
		_ = s.consoleCli.Close()
	}
	if s.dlCli != nil {
		_ = s.dlCli.Close()
	}

	if s.ds != nil {
		if err := s.ds.AskExit(); err != nil {
			s.log.Warnw("failed to ask ds to exit, terminating", "error", err)
			_ = s.ds.Terminate()
		}
		if err := s.ds.WaitFinished(ctx); err != nil {
			s.log.Debugw("ds exited", "error", err)
		}
	}
}
