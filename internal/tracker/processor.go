package tracker

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/objectfusion/internal/association"
	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/tracker/model"
	"github.com/banshee-data/objectfusion/internal/types"
)

// Track is one member of the population. ID and UUID never change and the
// estimator variant is fixed at spawn.
type Track struct {
	ID     uint64
	UUID   string
	Status types.TrackStatus

	LastUpdate  time.Time
	UpdateCount int // measurements fused, including the spawning one
	MissCount   int // cycles in which the track went unmatched

	// Channels holds the most recent contributions, oldest first.
	Channels []types.ChannelContribution

	est model.Estimator
}

// Label is the most probable class of the track.
func (t *Track) Label() types.ObjectClass { return t.est.Classification().Label() }

// Existence is the current existence probability.
func (t *Track) Existence() float64 { return t.est.Existence() }

// Model reports the estimator variant.
func (t *Track) Model() model.Kind { return t.est.Kind() }

// Stats counts lifecycle events since the processor was created.
type Stats struct {
	Active           int
	Created          uint64
	Confirmed        uint64
	RemovedStale     uint64
	RemovedExistence uint64
	RemovedOverlap   uint64
}

// Processor owns the track population. It is not safe for concurrent use.
type Processor struct {
	cfg    Config
	assoc  *association.Engine
	tracks []*Track // ordered by ID
	nextID uint64
	stats  Stats
}

// NewProcessor validates cfg and returns an empty Processor.
func NewProcessor(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	assoc, err := association.NewEngine(cfg.Matrices)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Processor{cfg: cfg, assoc: assoc, nextID: 1}, nil
}

// Config returns the processor configuration.
func (p *Processor) Config() Config { return p.cfg }

// Len returns the number of live tracks.
func (p *Processor) Len() int { return len(p.tracks) }

// Tracks returns the live tracks ordered by ID. The slice is a copy; the
// tracks are not and must be treated as read-only.
func (p *Processor) Tracks() []*Track {
	out := make([]*Track, len(p.tracks))
	copy(out, p.tracks)
	return out
}

// Stats returns a copy of the lifecycle counters.
func (p *Processor) Stats() Stats {
	s := p.stats
	s.Active = len(p.tracks)
	return s
}

// Predict advances every estimator to the given time and decays existence
// over the same interval. Tracks already at or past the time are untouched.
func (p *Processor) Predict(to time.Time) {
	for _, tr := range p.tracks {
		dt := to.Sub(tr.est.Stamp())
		if dt <= 0 {
			continue
		}
		tr.est.Predict(dt)
		tr.est.PredictExistence(dt)
	}
}

// Associate scores the current population against dets, with every track
// extrapolated to at, and returns the greedy assignment. Forward is indexed
// in the order of Tracks().
func (p *Processor) Associate(dets []types.Detection, at time.Time) association.Result {
	views := make([]association.TrackView, len(p.tracks))
	for i, tr := range p.tracks {
		st := tr.est.StateAt(at)
		views[i] = association.TrackView{
			ID:    tr.ID,
			Label: tr.Label(),
			Pose:  st.Pose,
			Shape: st.Shape,
		}
	}
	res := association.Assign(p.assoc.CostMatrix(views, dets))
	tracef("associate: tracks=%d detections=%d matched=%d", len(p.tracks), len(dets), res.Matched())
	return res
}

// Update fuses matched detections into their tracks and counts a miss for
// every unmatched track. ego is the ego pose in the tracking frame at the
// batch stamp and only feeds the contribution history.
func (p *Processor) Update(batch types.DetectionBatch, ego geom.Pose, forward []int) {
	if len(forward) != len(p.tracks) {
		invariantViolated("forward map has %d entries for %d tracks", len(forward), len(p.tracks))
		return
	}
	for i, tr := range p.tracks {
		j := forward[i]
		if j < 0 {
			tr.MissCount++
			continue
		}
		if j >= len(batch.Objects) {
			invariantViolated("track %d assigned to detection %d of %d", tr.ID, j, len(batch.Objects))
			continue
		}
		det := batch.Objects[j]
		tr.est.Update(det, batch.Stamp)
		if batch.Stamp.After(tr.LastUpdate) {
			tr.LastUpdate = batch.Stamp
		}
		tr.UpdateCount++
		p.recordContribution(tr, batch, ego, det)
		p.maybeConfirm(tr)
	}
}

// Prune removes stale tracks, tracks whose existence has decayed below the
// minimum, and the weaker track of every overlapping compatible pair. It
// returns the number of tracks removed. Pruning twice at the same time
// without intervening mutation removes nothing the second time.
func (p *Processor) Prune(at time.Time) int {
	kept := p.tracks[:0]
	removed := 0
	for _, tr := range p.tracks {
		label := tr.Label()
		switch {
		case at.Sub(tr.LastUpdate) > p.cfg.Lifetime[label]:
			p.stats.RemovedStale++
			diagf("removed track %d (%s): stale for %v", tr.ID, label, at.Sub(tr.LastUpdate))
		case tr.Existence() < p.cfg.MinExistenceProbability:
			p.stats.RemovedExistence++
			diagf("removed track %d (%s): existence %.3f", tr.ID, label, tr.Existence())
		default:
			kept = append(kept, tr)
			continue
		}
		removed++
	}
	clear(p.tracks[len(kept):])
	p.tracks = kept

	removed += p.suppressOverlaps(at)
	if removed > 0 {
		tracef("prune at %s: removed=%d active=%d", at.Format(time.RFC3339Nano), removed, len(p.tracks))
	}
	return removed
}

// suppressOverlaps compares every pair of live tracks in ID order. A track
// removed earlier in the pass takes no further part in it.
func (p *Processor) suppressOverlaps(at time.Time) int {
	n := len(p.tracks)
	if n < 2 {
		return 0
	}
	states := make([]model.State, n)
	footprints := make([][]geom.Point2, n)
	labels := make([]types.ObjectClass, n)
	for i, tr := range p.tracks {
		states[i] = tr.est.StateAt(at)
		footprints[i] = states[i].Shape.Outline(states[i].Pose)
		labels[i] = tr.Label()
	}

	dead := make([]bool, n)
	for i := 0; i < n; i++ {
		if dead[i] {
			continue
		}
		for j := i + 1; j < n; j++ {
			if dead[j] {
				continue
			}
			if !compatible(labels[i], labels[j]) {
				continue
			}
			if states[i].Pose.Position.Sub(states[j].Pose.Position).Norm2D() > p.cfg.DistanceThreshold {
				continue
			}
			threshold := p.cfg.MinKnownObjectRemovalIoU
			if labels[i] == types.ClassUnknown || labels[j] == types.ClassUnknown {
				threshold = p.cfg.MinUnknownObjectRemovalIoU
			}
			iou := geom.IoU2D(footprints[i], footprints[j])
			if iou <= threshold {
				continue
			}
			loser := j
			if weaker(p.tracks[i], p.tracks[j]) {
				loser = i
			}
			dead[loser] = true
			diagf("removed track %d: overlaps track %d (iou=%.3f)", p.tracks[loser].ID, p.tracks[i+j-loser].ID, iou)
			if loser == i {
				break
			}
		}
	}

	kept := p.tracks[:0]
	removed := 0
	for i, tr := range p.tracks {
		if dead[i] {
			removed++
			continue
		}
		kept = append(kept, tr)
	}
	clear(p.tracks[len(kept):])
	p.tracks = kept
	p.stats.RemovedOverlap += uint64(removed)
	return removed
}

// compatible reports whether two labels may describe the same object.
func compatible(a, b types.ObjectClass) bool {
	return a == b || a == types.ClassUnknown || b == types.ClassUnknown
}

// weaker reports whether a loses an overlap against b: lower existence,
// then fewer updates, then the younger identity.
func weaker(a, b *Track) bool {
	if ea, eb := a.Existence(), b.Existence(); ea != eb {
		return ea < eb
	}
	if a.UpdateCount != b.UpdateCount {
		return a.UpdateCount < b.UpdateCount
	}
	return a.ID > b.ID
}

// Spawn creates a tentative track for every detection left unmatched in
// reverse. The caller decides whether the batch's channel may spawn. It
// returns the number of tracks created.
func (p *Processor) Spawn(batch types.DetectionBatch, ego geom.Pose, reverse []int) int {
	if len(reverse) != len(batch.Objects) {
		invariantViolated("reverse map has %d entries for %d detections", len(reverse), len(batch.Objects))
		return 0
	}
	created := 0
	for j, det := range batch.Objects {
		if reverse[j] >= 0 {
			continue
		}
		label := det.Label()
		kind := p.cfg.Models[label]
		est, err := model.New(kind, det, batch.Stamp, p.cfg.Estimator)
		if err != nil {
			opsf("spawn skipped for %s detection on %s: %v", label, batch.Channel, err)
			continue
		}
		tr := &Track{
			ID:          p.nextID,
			UUID:        uuid.NewString(),
			Status:      types.TrackTentative,
			LastUpdate:  batch.Stamp,
			UpdateCount: 1,
			est:         est,
		}
		p.nextID++
		p.recordContribution(tr, batch, ego, det)
		p.tracks = append(p.tracks, tr)
		p.stats.Created++
		created++
		diagf("spawned track %d (%s, %s) from %s", tr.ID, label, kind, batch.Channel)
		p.maybeConfirm(tr)
	}
	return created
}

func (p *Processor) maybeConfirm(tr *Track) {
	if tr.Status == types.TrackConfirmed {
		return
	}
	label := tr.Label()
	if tr.UpdateCount <= p.cfg.ConfidentCount[label] {
		return
	}
	if tr.Existence() < p.cfg.ConfirmExistenceProbability {
		return
	}
	tr.Status = types.TrackConfirmed
	p.stats.Confirmed++
	diagf("confirmed track %d (%s) after %d updates, existence=%.3f", tr.ID, label, tr.UpdateCount, tr.Existence())
}

func (p *Processor) recordContribution(tr *Track, batch types.DetectionBatch, ego geom.Pose, det types.Detection) {
	c := types.ChannelContribution{
		Channel: batch.Channel,
		Stamp:   batch.Stamp,
		RangeM:  det.Pose.Position.Sub(ego.Position).Norm2D(),
	}
	tr.Channels = append(tr.Channels, c)
	if over := len(tr.Channels) - p.cfg.ChannelHistorySize; over > 0 {
		tr.Channels = append(tr.Channels[:0], tr.Channels[over:]...)
	}
}

// Snapshot returns the confirmed tracks extrapolated to at, ordered by ID.
func (p *Processor) Snapshot(at time.Time) types.Snapshot {
	return p.snapshot(at, types.TrackConfirmed)
}

// TentativeSnapshot returns the tentative tracks extrapolated to at.
func (p *Processor) TentativeSnapshot(at time.Time) types.Snapshot {
	return p.snapshot(at, types.TrackTentative)
}

func (p *Processor) snapshot(at time.Time, status types.TrackStatus) types.Snapshot {
	out := types.Snapshot{Stamp: at, FrameID: p.cfg.FrameID, Objects: []types.TrackedObject{}}
	for _, tr := range p.tracks {
		if tr.Status != status {
			continue
		}
		out.Objects = append(out.Objects, tr.object(at))
	}
	return out
}

func (t *Track) object(at time.Time) types.TrackedObject {
	st := t.est.StateAt(at)
	class := t.est.Classification()
	obj := types.TrackedObject{
		ID:                   t.ID,
		UUID:                 t.UUID,
		Label:                class.Label(),
		Classification:       class,
		ExistenceProbability: t.est.Existence(),
		Status:               t.Status,
		Model:                string(t.est.Kind()),
		Pose:                 st.Pose,
		PositionCovariance:   st.PositionCovariance,
		YawVariance:          st.YawVariance,
		VelocityX:            st.VelocityX,
		VelocityY:            st.VelocityY,
		SpeedMps:             st.Speed,
		YawRate:              st.YawRate,
		Shape:                st.Shape.Clone(),
		LastUpdate:           t.LastUpdate,
		UpdateCount:          t.UpdateCount,
		MissCount:            t.MissCount,
	}
	if len(t.Channels) > 0 {
		obj.Channels = make([]types.ChannelContribution, len(t.Channels))
		copy(obj.Channels, t.Channels)
	}
	return obj
}
