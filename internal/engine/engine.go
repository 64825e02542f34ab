package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/input"
	"github.com/banshee-data/objectfusion/internal/tracker"
	"github.com/banshee-data/objectfusion/internal/types"
	"github.com/banshee-data/objectfusion/internal/uncertainty"
)

// Sink receives published snapshots of confirmed tracks.
type Sink interface {
	Publish(ctx context.Context, snap types.Snapshot) error
}

// TentativeSink is implemented by sinks that also want tentative tracks.
// It is only used when PublishTentativeObjects is set.
type TentativeSink interface {
	PublishTentative(ctx context.Context, snap types.Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snap types.Snapshot) error

func (f SinkFunc) Publish(ctx context.Context, snap types.Snapshot) error { return f(ctx, snap) }

// CycleResult reports what one trigger did with the ready batches.
type CycleResult struct {
	Processed int  // batches that ran a full cycle
	Skipped   int  // batches dropped: empty, or no transform available
	Published bool // a snapshot was handed to the sink
}

// Stats summarises engine activity since construction.
type Stats struct {
	Cycles        uint64
	Skipped       uint64
	SkippedNoTF   uint64
	Dropped       uint64 // detections removed by normalisation
	Publications  uint64
	PublishErrors uint64
	LastPublished time.Time
	LastUpdated   time.Time
	Tracker       tracker.Stats
	Input         []input.ChannelStats
}

// Engine runs tracking cycles. It is not safe for concurrent use; see Runner.
type Engine struct {
	cfg    Config
	inputs *input.Manager
	proc   *tracker.Processor
	tf     uncertainty.TransformProvider
	sink   Sink

	// lastPublished is the time of the most recent publication decision,
	// lastUpdated the time of the most recent trigger that delivered data.
	lastPublished time.Time
	lastUpdated   time.Time

	stats Stats
}

// New validates cfg and builds an Engine. tf may be nil when every source
// already reports in the world frame and the ego frame equals it. sink may be
// nil, in which case publication only updates bookkeeping.
func New(cfg Config, tf uncertainty.TransformProvider, sink Sink) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	inputs, err := input.NewManager(cfg.Input)
	if err != nil {
		return nil, err
	}
	proc, err := tracker.NewProcessor(cfg.Tracker)
	if err != nil {
		return nil, err
	}
	diagf("engine ready: world=%s ego=%s channels=%d delay_compensation=%v",
		cfg.WorldFrameID, cfg.EgoFrameID, len(cfg.Input.Channels), cfg.EnableDelayCompensation)
	return &Engine{cfg: cfg, inputs: inputs, proc: proc, tf: tf, sink: sink}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Inputs exposes the input manager. Its Ingest is safe to call from any
// goroutine.
func (e *Engine) Inputs() *input.Manager { return e.inputs }

// OnDetectionBatch queues a batch for the named channel.
func (e *Engine) OnDetectionBatch(channel string, batch types.DetectionBatch) error {
	return e.inputs.Ingest(channel, batch)
}

// OnTriggerCycle runs a cycle for every batch the input manager reports
// ready at now. Without delay compensation a snapshot is then published at
// the newest processed batch stamp. A trigger whose batches were all skipped
// publishes nothing and does not count as an update.
func (e *Engine) OnTriggerCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	var res CycleResult
	batches, ok := e.inputs.TryGetReadyBatches(now)
	if !ok {
		return res, nil
	}

	var latest time.Time
	for _, b := range batches {
		if e.RunCycle(b) {
			res.Processed++
			latest = b.Stamp
		} else {
			res.Skipped++
		}
	}
	tracef("trigger at %s: processed=%d skipped=%d tracks=%d",
		now.Format(time.RFC3339Nano), res.Processed, res.Skipped, e.proc.Len())

	// Only skipped batches: the population and the last snapshot stand.
	if res.Processed == 0 {
		return res, nil
	}
	e.lastUpdated = now

	if e.cfg.EnableDelayCompensation {
		return res, nil
	}
	if err := e.publish(ctx, latest, now); err != nil {
		return res, err
	}
	res.Published = true
	return res, nil
}

// OnPublishTick applies the delay-compensated publication rule at now:
// nothing is published sooner than MinPublishIntervalRatio periods after the
// previous publication; after that a snapshot extrapolated to now is
// published when new data arrived since, or once MaxPublishIntervalRatio
// periods have elapsed regardless.
func (e *Engine) OnPublishTick(ctx context.Context, now time.Time) (bool, error) {
	period := e.cfg.PublishPeriod().Seconds()
	elapsed := now.Sub(e.lastPublished).Seconds()
	if elapsed < period*e.cfg.MinPublishIntervalRatio {
		return false, nil
	}
	should := e.lastPublished.Before(e.lastUpdated) || elapsed > period*e.cfg.MaxPublishIntervalRatio
	if !should {
		return false, nil
	}
	if err := e.publish(ctx, now, now); err != nil {
		return false, err
	}
	return true, nil
}

// RunCycle processes one delivered batch end to end. It returns false, with
// the track population untouched, when the batch is empty or cannot be
// placed in the world frame.
func (e *Engine) RunCycle(batch types.DetectionBatch) bool {
	if batch.Empty() {
		e.stats.Skipped++
		return false
	}
	ego, ok := e.egoPose(batch.Stamp)
	if !ok {
		e.stats.Skipped++
		e.stats.SkippedNoTF++
		diagf("skipped %s batch at %s: no %s→%s transform", batch.Channel,
			batch.Stamp.Format(time.RFC3339Nano), e.cfg.EgoFrameID, e.cfg.WorldFrameID)
		return false
	}
	world, ok := uncertainty.TransformToWorld(batch, e.cfg.WorldFrameID, e.tf)
	if !ok {
		e.stats.Skipped++
		e.stats.SkippedNoTF++
		diagf("skipped %s batch at %s: no %s→%s transform", batch.Channel,
			batch.Stamp.Format(time.RFC3339Nano), batch.FrameID, e.cfg.WorldFrameID)
		return false
	}
	if e.cfg.ConsiderOdometryUncertainty {
		uncertainty.AddOdometryUncertainty(e.cfg.Odometry.Modeled(ego, batch.Stamp), &world)
	}
	if n := uncertainty.Normalize(&world, e.cfg.Limits); n > 0 {
		e.stats.Dropped += uint64(n)
		opsf("%s batch at %s: dropped %d non-finite detection(s)", batch.Channel,
			batch.Stamp.Format(time.RFC3339Nano), n)
	}
	if world.Empty() {
		e.stats.Skipped++
		return false
	}

	// Step 1: Predict all tracks to the measurement time
	e.proc.Predict(world.Stamp)
	// Step 2: Associate detections with predicted tracks
	res := e.proc.Associate(world.Objects, world.Stamp)
	// Step 3: Update matched tracks, count misses on the rest
	e.proc.Update(world, ego, res.Forward)
	// Step 4: Remove stale, improbable and duplicate tracks
	e.proc.Prune(world.Stamp)
	// Step 5: Spawn from unmatched detections on spawning channels
	if e.inputs.IsSpawnEnabled(world.Channel) {
		e.proc.Spawn(world, ego, res.Reverse)
	}
	e.stats.Cycles++
	return true
}

func (e *Engine) egoPose(at time.Time) (geom.Pose, bool) {
	if e.cfg.EgoFrameID == e.cfg.WorldFrameID {
		return geom.IdentityTransform.AsPose(), true
	}
	if e.tf == nil {
		return geom.Pose{}, false
	}
	tf, ok := e.tf.LookupTransform(e.cfg.EgoFrameID, e.cfg.WorldFrameID, at)
	if !ok || !tf.Valid() {
		return geom.Pose{}, false
	}
	return tf.AsPose(), true
}

// publish prunes at the snapshot time and hands the snapshot to the sink.
// now is recorded as the publication time.
func (e *Engine) publish(ctx context.Context, at, now time.Time) error {
	e.proc.Prune(at)
	e.lastPublished = now
	e.stats.Publications++
	if e.sink == nil {
		return nil
	}
	snap := e.proc.Snapshot(at)
	if err := e.sink.Publish(ctx, snap); err != nil {
		e.stats.PublishErrors++
		opsf("publish at %s failed: %v", at.Format(time.RFC3339Nano), err)
		return fmt.Errorf("publish snapshot: %w", err)
	}
	if !e.cfg.PublishTentativeObjects {
		return nil
	}
	if ts, ok := e.sink.(TentativeSink); ok {
		if err := ts.PublishTentative(ctx, e.proc.TentativeSnapshot(at)); err != nil {
			e.stats.PublishErrors++
			return fmt.Errorf("publish tentative snapshot: %w", err)
		}
	}
	return nil
}

// Snapshot returns the confirmed tracks extrapolated to at.
func (e *Engine) Snapshot(at time.Time) types.Snapshot { return e.proc.Snapshot(at) }

// TentativeSnapshot returns the tentative tracks extrapolated to at.
func (e *Engine) TentativeSnapshot(at time.Time) types.Snapshot {
	return e.proc.TentativeSnapshot(at)
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.LastPublished = e.lastPublished
	s.LastUpdated = e.lastUpdated
	s.Tracker = e.proc.Stats()
	s.Input = e.inputs.Stats()
	return s
}
