package performance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"show-orchestrator/internal/platform/metrics"
)

// Scheduler defaults.
const (
	DefaultAckTimeout    = 2 * time.Second
	DefaultLateTolerance = 350 * time.Millisecond
	DefaultMinStartWin   = 0.6

	danceHoldFraction = 0.8
	breathPeriod      = 500 * time.Millisecond
)

var errMissedWindow = errors.New("missed start window")

// SchedulerConfig tunes one scheduler. Zero values fall back to defaults.
type SchedulerConfig struct {
	// AckTimeout bounds the wait for a discrete command acknowledgement.
	// Exceeding it is a per-action failure, never fatal.
	AckTimeout time.Duration
	// LateTolerance is the wall-clock lateness past which an action is
	// skipped instead of dispatched late.
	LateTolerance time.Duration
	// MinStartWindow is the plan-seconds margin before plan end inside
	// which no new dance/action/expression is started. Lights use a third
	// of it.
	MinStartWindow float64
	// TimeScale is wall seconds per plan second. 1.0 runs in real time;
	// smaller values run rehearsals faster than the music.
	TimeScale float64
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.LateTolerance <= 0 {
		c.LateTolerance = DefaultLateTolerance
	}
	if c.MinStartWindow <= 0 {
		c.MinStartWindow = DefaultMinStartWin
	}
	if c.TimeScale <= 0 {
		c.TimeScale = 1.0
	}
	return c
}

// Scheduler executes validated plans against a gateway: one loop per
// channel sharing a single monotonic start reference, a cascading fallback
// strategy, and per-action failure isolation.
type Scheduler struct {
	gw  Gateway
	log *slog.Logger
	met *metrics.Metrics
	cfg SchedulerConfig
}

// NewScheduler returns a Scheduler driving the given gateway.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewScheduler(gw Gateway, log *slog.Logger, met *metrics.Metrics, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{gw: gw, log: log, met: met, cfg: cfg.withDefaults()}
}

// runClock converts between wall time and plan time for one run.
// t0 is captured once at execution start and shared by every channel loop.
type runClock struct {
	t0    time.Time
	scale float64
}

// elapsed returns plan seconds since t0.
func (c runClock) elapsed() float64 {
	return time.Since(c.t0).Seconds() / c.scale
}

// wallUntil returns the wall duration remaining until plan time t.
// Negative when t is already past.
func (c runClock) wallUntil(t float64) time.Duration {
	deadline := time.Duration(t * c.scale * float64(time.Second))
	return deadline - time.Since(c.t0)
}

// wallDur converts a plan-seconds span into wall time.
func (c runClock) wallDur(planSeconds float64) time.Duration {
	return time.Duration(planSeconds * c.scale * float64(time.Second))
}

// sleepUntil waits d (no-op when d <= 0) and reports false if ctx was
// cancelled first. It is the scheduler's only suspension primitive, so
// cancellation is observed at every suspension point.
func sleepUntil(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Execute runs the plan and always returns a report, never an error: per
// action failures, downgrades, cancellation and aborts are all reflected
// in the report. The plan must already be validated.
func (s *Scheduler) Execute(ctx context.Context, plan Plan) *Report {
	b := newReportBuilder(plan)
	started := time.Now()
	clk := runClock{t0: started, scale: s.cfg.TimeScale}

	tier := TierSynchronized
	if !s.gw.Supports(CapSynchronized) {
		tier = TierContinuous
		b.downgrade(0, TierSynchronized, TierContinuous, "synchronized capability unsupported")
		s.incDowngrade()
	}

	b.event(0, "run started", "")
	s.log.Info("performance run started",
		slog.String("plan_id", plan.ID),
		slog.Int("actions", len(plan.Actions)),
		slog.String("tier", string(tier)),
	)

	aborted := false
	for ctx.Err() == nil {
		pending := b.pendingActions()
		if len(pending) == 0 {
			break
		}
		switch tier {
		case TierSynchronized:
			b.useTier(TierSynchronized)
			if s.runSynchronized(ctx, plan, pending, b, clk) {
				tier = TierContinuous
				b.downgrade(clk.elapsed(), TierSynchronized, TierContinuous, "connectivity error on a channel's first dispatch")
				s.incDowngrade()
				continue
			}
		case TierContinuous:
			b.useTier(TierContinuous)
			if s.runContinuous(ctx, pending, b, clk) {
				tier = TierIndividual
				b.downgrade(clk.elapsed(), TierContinuous, TierIndividual, "connectivity error on first dispatch")
				s.incDowngrade()
				continue
			}
		case TierIndividual:
			b.useTier(TierIndividual)
			aborted = s.runIndividual(ctx, pending, b, clk)
		}
		break
	}

	// Whatever never got dispatched ends cancelled, both on external
	// cancellation and on abort.
	for _, a := range b.pendingActions() {
		b.markCancelled(a.ID)
	}

	status := StatusCompleted
	switch {
	case aborted:
		status = StatusAborted
		b.event(clk.elapsed(), "run aborted: connectivity lost on every channel", "")
	case ctx.Err() != nil:
		status = StatusCancelled
		b.event(clk.elapsed(), "run cancelled", "")
	default:
		b.event(clk.elapsed(), "run finished", "")
	}

	rep := b.finish(status, started, time.Now())
	s.log.Info("performance run finished",
		slog.String("plan_id", plan.ID),
		slog.String("status", string(status)),
		slog.Float64("success_rate", rep.SuccessRate),
	)
	return rep
}

// runSynchronized drives every channel concurrently against the shared
// clock. It returns true when a channel's first dispatch hit a
// connectivity error and the run should downgrade.
func (s *Scheduler) runSynchronized(parent context.Context, plan Plan, pending []Action, b *reportBuilder, clk runClock) (lost bool) {
	runCtx, stop := context.WithCancel(parent)
	defer stop()

	var lostFlag atomic.Bool
	onLost := func() {
		lostFlag.Store(true)
		stop()
	}

	byCh := groupByChannel(pending)
	var wg sync.WaitGroup
	for ch, actions := range byCh {
		wg.Add(1)
		go func(ch Channel, actions []Action) {
			defer wg.Done()
			s.runChannelLoop(parent, runCtx, ch, actions, plan.TotalDuration, b, clk, onLost)
		}(ch, actions)
	}
	wg.Wait()
	return lostFlag.Load() && parent.Err() == nil
}

// runChannelLoop executes one channel's actions strictly in start order.
// Failures are recorded and the loop continues; only a connectivity error
// on the channel's first dispatch escalates through onLost.
func (s *Scheduler) runChannelLoop(parent, ctx context.Context, ch Channel, actions []Action, total float64, b *reportBuilder, clk runClock, onLost func()) {
	first := true
	for i, a := range actions {
		if !sleepUntil(ctx, clk.wallUntil(a.Start)) {
			return
		}
		if late := -clk.wallUntil(a.Start); late > s.cfg.LateTolerance {
			b.markFailed(a.ID, errMissedWindow)
			b.event(clk.elapsed(), fmt.Sprintf("skipped %s %s: late by %.2fs", ch, a.Name, late.Seconds()), a.ID)
			continue
		}
		if skip, reason := s.tooCloseToEnd(ch, total, clk.elapsed()); skip {
			b.markFailed(a.ID, reason)
			continue
		}

		err := s.dispatch(ctx, a, b, clk)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-dispatch; the outer sweep settles the rest.
				b.markCancelled(a.ID)
				return
			}
			b.markFailed(a.ID, err)
			b.event(clk.elapsed(), fmt.Sprintf("dispatch failed: %s %s: %v", ch, a.Name, err), a.ID)
			s.incFailed()
			if first && IsUnreachable(err) {
				onLost()
				return
			}
			first = false
			continue
		}
		first = false
		b.markAcknowledged(a.ID)

		if !sleepUntil(ctx, clk.wallUntil(a.End())) {
			if parent.Err() != nil {
				// External cancel: stop the active command where possible.
				if ch == ChannelDance {
					s.stopDanceQuiet()
				}
				b.markCancelled(a.ID)
			} else {
				b.markFailed(a.ID, errors.New("interrupted by strategy downgrade"))
			}
			return
		}

		// The channel's physical state is exclusive for dances: stop the
		// running one before the next is dispatched.
		if ch == ChannelDance && i+1 < len(actions) {
			s.stopDanceQuiet()
		}
		b.markCompleted(a.ID)
		b.event(clk.elapsed(), fmt.Sprintf("completed %s %s", ch, a.Name), a.ID)
	}
}

// runContinuous is the sequential fallback: it drives the dance channel to
// completion and flushes expression/light/action commands around each
// dance without fine-grained timing guarantees. Returns true when the
// tier's first dispatch hit a connectivity error.
func (s *Scheduler) runContinuous(ctx context.Context, pending []Action, b *reportBuilder, clk runClock) (lost bool) {
	var dances, others []Action
	for _, a := range pending {
		if a.Channel == ChannelDance {
			dances = append(dances, a)
		} else {
			others = append(others, a)
		}
	}

	first := true
	oi := 0

	// flush dispatches queued non-dance actions scheduled before `until`.
	flush := func(until float64) (lost bool) {
		for oi < len(others) && others[oi].Start < until {
			a := others[oi]
			oi++
			if ctx.Err() != nil {
				return false
			}
			err := s.dispatch(ctx, a, b, clk)
			if err != nil {
				if ctx.Err() != nil {
					b.markCancelled(a.ID)
					return false
				}
				b.markFailed(a.ID, err)
				s.incFailed()
				if first && IsUnreachable(err) {
					first = false
					return true
				}
				first = false
				continue
			}
			first = false
			b.markAcknowledged(a.ID)
			b.markCompleted(a.ID)
		}
		return false
	}

	for _, d := range dances {
		if ctx.Err() != nil {
			return false
		}
		err := s.dispatch(ctx, d, b, clk)
		if err != nil {
			if ctx.Err() != nil {
				b.markCancelled(d.ID)
				return false
			}
			b.markFailed(d.ID, err)
			s.incFailed()
			if first && IsUnreachable(err) {
				return true
			}
			first = false
			if flush(d.End()) {
				return true
			}
			continue
		}
		first = false
		b.markAcknowledged(d.ID)
		if flush(d.End()) {
			return true
		}
		if !sleepUntil(ctx, clk.wallDur(d.Duration)) {
			s.stopDanceQuiet()
			b.markCancelled(d.ID)
			return false
		}
		s.stopDanceQuiet()
		b.markCompleted(d.ID)
	}
	return flush(math.Inf(1))
}

// runIndividual executes every remaining action one at a time in plan
// order with best-effort timing. It returns true when connectivity was
// lost on every channel's first dispatch, which aborts the run.
func (s *Scheduler) runIndividual(ctx context.Context, pending []Action, b *reportBuilder, clk runClock) (aborted bool) {
	channels := make(map[Channel]bool)
	for _, a := range pending {
		channels[a.Channel] = true
	}
	firstErr := make(map[Channel]error, len(channels))

	for _, a := range pending {
		if ctx.Err() != nil {
			return false
		}
		err := s.dispatch(ctx, a, b, clk)
		if _, seen := firstErr[a.Channel]; !seen {
			firstErr[a.Channel] = err
		}
		if err != nil {
			if ctx.Err() != nil {
				b.markCancelled(a.ID)
				return false
			}
			b.markFailed(a.ID, err)
			s.incFailed()
		} else {
			b.markAcknowledged(a.ID)
			if a.Channel == ChannelDance {
				if !sleepUntil(ctx, clk.wallDur(a.Duration*danceHoldFraction)) {
					s.stopDanceQuiet()
					b.markCancelled(a.ID)
					return false
				}
				s.stopDanceQuiet()
			}
			b.markCompleted(a.ID)
		}

		if len(firstErr) == len(channels) {
			all := true
			for _, e := range firstErr {
				if !IsUnreachable(e) {
					all = false
					break
				}
			}
			if all {
				return true
			}
		}
	}
	return false
}

// dispatch sends one action to the gateway. Dances are fire-and-forget
// start commands; discrete commands await an acknowledgement up to the
// configured timeout.
func (s *Scheduler) dispatch(ctx context.Context, a Action, b *reportBuilder, clk runClock) error {
	at := clk.elapsed()
	b.markDispatched(a.ID, at)
	b.event(at, fmt.Sprintf("dispatch %s %s", a.Channel, a.Name), a.ID)
	s.incDispatched()

	switch a.Channel {
	case ChannelDance:
		return s.gw.StartDance(ctx, a.Name)
	case ChannelAction:
		return s.withAckTimeout(ctx, "play_action", func(c context.Context) error {
			return s.gw.PlayAction(c, a.Name)
		})
	case ChannelExpression:
		return s.withAckTimeout(ctx, "show_expression", func(c context.Context) error {
			return s.gw.ShowExpression(c, a.Name)
		})
	case ChannelLight:
		color := a.Param("color", ColorWhite)
		mode := a.Param("mode", LightModeBreath)
		return s.withAckTimeout(ctx, "set_light", func(c context.Context) error {
			return s.gw.SetLight(c, color, mode, clk.wallDur(a.Duration), breathPeriod)
		})
	default:
		return &DeviceError{Kind: DeviceRejected, Op: string(a.Channel)}
	}
}

// withAckTimeout bounds a discrete command's acknowledgement wait.
// A blown deadline is reported as a DeviceError timeout, identical to any
// other dispatch failure.
func (s *Scheduler) withAckTimeout(ctx context.Context, op string, f func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, s.cfg.AckTimeout)
	defer cancel()
	err := f(c)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &DeviceError{Kind: DeviceTimeout, Op: op}
	}
	return err
}

// tooCloseToEnd reports whether starting a new action now would outlive
// the music. Lights tolerate a smaller margin than body commands.
func (s *Scheduler) tooCloseToEnd(ch Channel, total, elapsed float64) (bool, error) {
	window := s.cfg.MinStartWindow
	if ch == ChannelLight {
		window /= 3
	}
	if total-elapsed < window {
		return true, fmt.Errorf("skipped: %.2fs left before plan end", total-elapsed)
	}
	return false, nil
}

// stopDanceQuiet stops the running behavior on a short independent
// context so a stop still goes out after cancellation.
func (s *Scheduler) stopDanceQuiet() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.gw.StopDance(ctx); err != nil {
		s.log.Debug("stop dance failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) incDispatched() {
	if s.met != nil {
		s.met.IncActionsDispatched()
	}
}

func (s *Scheduler) incFailed() {
	if s.met != nil {
		s.met.IncActionsFailed()
	}
}

func (s *Scheduler) incDowngrade() {
	if s.met != nil {
		s.met.IncDowngrades()
	}
}

func groupByChannel(actions []Action) map[Channel][]Action {
	out := make(map[Channel][]Action)
	for _, a := range actions {
		out[a.Channel] = append(out[a.Channel], a)
	}
	for ch := range out {
		sortByStart(out[ch])
	}
	return out
}
