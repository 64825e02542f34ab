package engine

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/objectfusion/internal/timeutil"
	"github.com/banshee-data/objectfusion/internal/types"
)

// ErrRunnerStopped is returned by Runner methods once Run has returned.
var ErrRunnerStopped = errors.New("engine runner stopped")

type submission struct {
	channel string
	batch   types.DetectionBatch
	errc    chan error
}

type query struct {
	fn   func(*Engine)
	done chan struct{}
}

// Runner is the single owner of an Engine. Submitted batches trigger a cycle
// as soon as they are queued; with delay compensation enabled a ticker at
// ten times the publish rate drives OnPublishTick. Queries run between
// cycles on the same goroutine.
type Runner struct {
	eng   *Engine
	clock timeutil.Clock

	submit  chan submission
	queries chan query
	stopped chan struct{}
}

// NewRunner wraps eng. A nil clock uses the wall clock.
func NewRunner(eng *Engine, clock timeutil.Clock) *Runner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{
		eng:     eng,
		clock:   clock,
		submit:  make(chan submission),
		queries: make(chan query),
		stopped: make(chan struct{}),
	}
}

// Run owns the engine until ctx is cancelled. It returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)

	var tick <-chan time.Time
	if r.eng.cfg.EnableDelayCompensation {
		t := r.clock.NewTicker(r.eng.cfg.TickInterval())
		defer t.Stop()
		tick = t.C()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case s := <-r.submit:
			err := r.eng.OnDetectionBatch(s.channel, s.batch)
			s.errc <- err
			if err != nil {
				continue
			}
			if _, err := r.eng.OnTriggerCycle(ctx, r.clock.Now()); err != nil {
				opsf("trigger cycle: %v", err)
			}

		case now := <-tick:
			if _, err := r.eng.OnPublishTick(ctx, now); err != nil {
				opsf("publish tick: %v", err)
			}

		case q := <-r.queries:
			q.fn(r.eng)
			close(q.done)
		}
	}
}

// Submit hands a batch to the engine and waits until it has been queued.
// The cycle it triggers runs before the next submission is accepted.
func (r *Runner) Submit(ctx context.Context, channel string, batch types.DetectionBatch) error {
	s := submission{channel: channel, batch: batch, errc: make(chan error, 1)}
	select {
	case r.submit <- s:
	case <-r.stopped:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-s.errc
}

// Do runs fn on the owner goroutine, between cycles.
func (r *Runner) Do(ctx context.Context, fn func(*Engine)) error {
	q := query{fn: fn, done: make(chan struct{})}
	select {
	case r.queries <- q:
	case <-r.stopped:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-q.done
	return nil
}

// Snapshot returns the confirmed tracks extrapolated to at.
func (r *Runner) Snapshot(ctx context.Context, at time.Time) (types.Snapshot, error) {
	var snap types.Snapshot
	err := r.Do(ctx, func(e *Engine) { snap = e.Snapshot(at) })
	return snap, err
}

// Stats returns the engine counters.
func (r *Runner) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := r.Do(ctx, func(e *Engine) { st = e.Stats() })
	return st, err
}
