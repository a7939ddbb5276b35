// Package radar implements the radar streaming facility (§4.10): unlike the
// generic facility, it has no upstream tap — it polls the device-link
// client on a schedule derived from its subscribers' requested refresh
// periods (the GCD of all periods) and fans each snapshot out to the
// subscriber groups whose period has elapsed. Grounded on radar.py's Radar
// class and streaming/facilities.py's scheduler loop.
package radar

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/il2fb-go/airbridge/internal/airerr"
	"github.com/il2fb-go/airbridge/internal/airtypes"
	"github.com/il2fb-go/airbridge/internal/sink"
)

// Snapshot is the opaque positions payload one poll returns.
type Snapshot any

// Source is satisfied by the upstream device-link client (§4.4, §4.10
// step 3: "call radar.get_all_moving_actors_positions(timeout)").
type Source interface {
	GetAllMovingActorsPositions(ctx context.Context, timeout time.Duration) (Snapshot, error)
}

// group is one §3 RadarSubscriberGroup: all sinks sharing a refresh period.
type group struct {
	period      time.Duration
	sinks       map[sink.Sink]struct{}
	lastRefresh time.Time // zero means "never refreshed"
}

func (g *group) needsRefresh(now time.Time) bool {
	return g.lastRefresh.IsZero() || now.Sub(g.lastRefresh) >= g.period
}

// ackRefresh aligns lastRefresh to now minus the elapsed-since-due residual
// so cadence drift does not accumulate, per SPEC_FULL.md §E.2: the first
// ack simply records now.
func (g *group) ackRefresh(now time.Time) {
	if g.lastRefresh.IsZero() {
		g.lastRefresh = now
		return
	}
	elapsed := now.Sub(g.lastRefresh)
	residual := elapsed % g.period
	g.lastRefresh = now.Add(-residual)
}

// RefreshTimeout bounds each poll of the device-link source.
const RefreshTimeout = 10 * time.Second

// Facility schedules periodic radar polls at the GCD of its subscribers'
// refresh periods.
type Facility struct {
	Source Source
	Clock  clock.Clock
	Log    *zap.SugaredLogger

	mu     sync.Mutex
	groups map[time.Duration]*group
	resume chan struct{}
	pause  chan struct{}

	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// New returns a Facility polling src.
func New(src Source, log *zap.SugaredLogger) *Facility {
	return &Facility{
		Source: src,
		Clock:  clock.New(),
		Log:    log,
		groups: map[time.Duration]*group{},
		resume: make(chan struct{}, 1),
		pause:  make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Subscribe adds s to the group for period, creating the group if needed
// and waking the scheduler if it was paused (empty subscriber set).
func (f *Facility) Subscribe(s sink.Sink, period time.Duration) {
	f.mu.Lock()
	wasEmpty := f.totalSinksLocked() == 0
	g, ok := f.groups[period]
	if !ok {
		g = &group{period: period, sinks: map[sink.Sink]struct{}{}}
		f.groups[period] = g
	}
	g.sinks[s] = struct{}{}
	f.mu.Unlock()

	if wasEmpty {
		select {
		case f.resume <- struct{}{}:
		default:
		}
	}
}

// Unsubscribe removes s from period's group, deleting the group if it
// becomes empty (§3 RadarSubscriberGroup invariant). If this drops the
// facility to zero subscribers, any in-flight poll is cancelled so the
// scheduler can pause immediately instead of waiting out RefreshTimeout.
func (f *Facility) Unsubscribe(s sink.Sink, period time.Duration) {
	f.mu.Lock()
	g, ok := f.groups[period]
	if !ok {
		f.mu.Unlock()
		return
	}
	delete(g.sinks, s)
	if len(g.sinks) == 0 {
		delete(f.groups, period)
	}
	nowEmpty := f.totalSinksLocked() == 0
	f.mu.Unlock()

	if nowEmpty {
		select {
		case f.pause <- struct{}{}:
		default:
		}
	}
}

func (f *Facility) totalSinksLocked() int {
	n := 0
	for _, g := range f.groups {
		n += len(g.sinks)
	}
	return n
}

func (f *Facility) tickPeriod() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.groups) == 0 {
		return 0, false
	}
	var acc time.Duration
	first := true
	for p := range f.groups {
		if first {
			acc = p
			first = false
			continue
		}
		acc = gcdDuration(acc, p)
	}
	return acc, true
}

// Start launches the scheduler loop (§4.10).
func (f *Facility) Start(ctx context.Context) {
	go f.run(ctx)
}

func (f *Facility) run(ctx context.Context) {
	defer close(f.done)

	for {
		tick, ok := f.tickPeriod()
		if !ok {
			// Paused: no subscribers. Wait for a subscription or stop.
			select {
			case <-f.resume:
				continue
			case <-f.stop:
				return
			case <-ctx.Done():
				return
			}
		}

		timer := f.Clock.Timer(tick)
		select {
		case <-timer.C:
		case <-f.resume:
			timer.Stop()
			continue
		case <-f.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}

		now := f.Clock.Now()
		due := f.dueGroupsLocked(now)
		if len(due) == 0 {
			continue
		}

		pctx, cancel := f.pollContext(ctx)
		snap, err := f.Source.GetAllMovingActorsPositions(pctx, RefreshTimeout)
		cancel()
		if err != nil {
			if f.Log != nil {
				f.Log.Warnw("radar refresh failed", "error", err)
			}
			if isConnectionAborted(err) {
				return
			}
			continue
		}

		f.dispatch(ctx, due, snap, now)
	}
}

// pollContext derives a context from parent that is additionally cancelled
// the moment Stop or Unsubscribe-to-empty fires, so an in-flight poll never
// blocks the scheduler for the full RefreshTimeout on either transition
// (§4.10: "the in-flight radar RPC MUST be cancellable on both pause and
// stop").
func (f *Facility) pollContext(parent context.Context) (context.Context, context.CancelFunc) {
	// Drain a stale pause signal left over from an Unsubscribe that landed
	// while no poll was in flight; otherwise it would wrongly cancel this
	// brand new poll the instant it starts.
	select {
	case <-f.pause:
	default:
	}

	pctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-f.stop:
			cancel()
		case <-f.pause:
			cancel()
		case <-pctx.Done():
		}
	}()
	return pctx, cancel
}

func (f *Facility) dueGroupsLocked(now time.Time) []*group {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*group
	for _, g := range f.groups {
		if g.needsRefresh(now) {
			due = append(due, g)
		}
	}
	return due
}

func (f *Facility) dispatch(ctx context.Context, due []*group, snap Snapshot, now time.Time) {
	item := airtypes.New(airtypes.KindRadarSnapshot, snap)

	for _, g := range due {
		f.mu.Lock()
		targets := make([]sink.Sink, 0, len(g.sinks))
		for s := range g.sinks {
			targets = append(targets, s)
		}
		f.mu.Unlock()

		eg, egctx := errgroup.WithContext(ctx)
		for _, s := range targets {
			s := s
			eg.Go(func() error {
				if err := s.Write(egctx, item); err != nil && f.Log != nil {
					f.Log.Warnw("radar sink write failed", "error", err)
				}
				return nil
			})
		}
		_ = eg.Wait()

		f.mu.Lock()
		g.ackRefresh(now)
		f.mu.Unlock()
	}
}

// Stop halts the scheduler loop; safe to call more than once.
func (f *Facility) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	f.mu.Unlock()
	close(f.stop)
}

// WaitStopped blocks until the scheduler loop has returned.
func (f *Facility) WaitStopped() { <-f.done }

func isConnectionAborted(err error) bool {
	return errors.Is(err, airerr.ErrConnectionAborted)
}
