package tracker

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/types"
)

var (
	t0  = time.Unix(1_700_000_000, 0)
	ego = geom.Pose{Orientation: geom.IdentityQuaternion}
)

func carAt(x, y float64) types.Detection {
	return detection(types.ClassCar, x, y, types.Box(4.5, 1.8, 1.5))
}

func detection(class types.ObjectClass, x, y float64, shape types.Shape) types.Detection {
	det := types.Detection{
		Classification: types.Certain(class),
		Pose:           geom.PoseXYYaw(x, y, 0),
		Orientation:    types.OrientationAvailable,
		Shape:          shape,
	}
	det.PoseCovariance[types.CovXX] = 0.1
	det.PoseCovariance[types.CovYY] = 0.1
	det.PoseCovariance[types.CovZZ] = 0.1
	det.PoseCovariance[types.CovYawYaw] = 0.01
	return det
}

func batchAt(at time.Time, dets ...types.Detection) types.DetectionBatch {
	return types.DetectionBatch{Stamp: at, Channel: "lidar", FrameID: "map", Objects: dets}
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(DefaultConfig())
	require.NoError(t, err)
	return p
}

// cycle runs one full predict, associate, update, prune, spawn sequence.
func cycle(p *Processor, b types.DetectionBatch) {
	p.Predict(b.Stamp)
	res := p.Associate(b.Objects, b.Stamp)
	p.Update(b, ego, res.Forward)
	p.Prune(b.Stamp)
	p.Spawn(b, ego, res.Reverse)
}

func ids(s types.Snapshot) []uint64 {
	out := make([]uint64, 0, len(s.Objects))
	for _, o := range s.Objects {
		out = append(out, o.ID)
	}
	return out
}

func TestConfigFromDefaults(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "map", cfg.FrameID)
	assert.Equal(t, "vehicle", string(cfg.Models[types.ClassCar]))
	assert.Equal(t, "pedestrian", string(cfg.Models[types.ClassPedestrian]))
	assert.Equal(t, time.Second, cfg.Lifetime[types.ClassTruck])
	assert.Equal(t, 3, cfg.ConfidentCount[types.ClassCar])
}

func TestConfigValidateRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero lifetime", func(c *Config) { c.Lifetime[types.ClassBus] = 0 }},
		{"missing model", func(c *Config) { c.Models[types.ClassBicycle] = "" }},
		{"negative confident count", func(c *Config) { c.ConfidentCount[types.ClassCar] = -1 }},
		{"zero distance threshold", func(c *Config) { c.DistanceThreshold = 0 }},
		{"empty history", func(c *Config) { c.ChannelHistorySize = 0 }},
		{"confirm probability above one", func(c *Config) { c.ConfirmExistenceProbability = 1.5 }},
		{"confirm probability above ceiling", func(c *Config) { c.ConfirmExistenceProbability = 0.9995 }},
		{"detection below false alarm", func(c *Config) {
			c.Estimator.Existence.DetectionProbability = 0.1
			c.Estimator.Existence.FalseAlarmProbability = 0.9
		}},
		{"zero detection probability", func(c *Config) { c.Estimator.Existence.DetectionProbability = 0 }},
		{"short matrix", func(c *Config) { c.Matrices.MaxDist = c.Matrices.MaxDist[:10] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
			_, err := NewProcessor(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSpawnThenConfirm(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)

	cycle(p, batchAt(t0, carAt(10, 0)))
	require.Equal(t, 1, p.Len())
	assert.Empty(t, p.Snapshot(t0).Objects, "a new track is not reported")
	tent := p.TentativeSnapshot(t0)
	require.Len(t, tent.Objects, 1)
	assert.Equal(t, uint64(1), tent.Objects[0].ID)
	assert.Equal(t, types.TrackTentative, tent.Objects[0].Status)
	assert.Equal(t, types.ClassCar, tent.Objects[0].Label)

	threshold := p.Config().ConfidentCount[types.ClassCar]
	at := t0
	for i := 0; i < threshold; i++ {
		assert.Empty(t, p.Snapshot(at).Objects, "confirmed too early after %d updates", i)
		at = at.Add(100 * time.Millisecond)
		cycle(p, batchAt(at, carAt(10, 0)))
		require.Equal(t, 1, p.Len(), "the detection must keep matching the same track")
	}

	snap := p.Snapshot(at)
	require.Len(t, snap.Objects, 1)
	obj := snap.Objects[0]
	assert.Equal(t, uint64(1), obj.ID)
	assert.Equal(t, types.TrackConfirmed, obj.Status)
	assert.Equal(t, threshold+1, obj.UpdateCount)
	assert.Equal(t, 0, obj.MissCount)
	assert.GreaterOrEqual(t, obj.ExistenceProbability, p.Config().ConfirmExistenceProbability)
	assert.InDelta(t, 10.0, obj.Pose.Position.X, 0.05)
	assert.NotEmpty(t, obj.UUID)
	assert.Equal(t, "map", snap.FrameID)

	st := p.Stats()
	assert.Equal(t, uint64(1), st.Created)
	assert.Equal(t, uint64(1), st.Confirmed)
	assert.Equal(t, 1, st.Active)
}

func TestStaleConfirmedTrackIsPruned(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)
	at := t0
	for i := 0; i < 5; i++ {
		cycle(p, batchAt(at, carAt(0, 0)))
		at = at.Add(100 * time.Millisecond)
	}
	last := at.Add(-100 * time.Millisecond)
	require.Len(t, p.Snapshot(last).Objects, 1)

	lifetime := p.Config().Lifetime[types.ClassCar]

	// Still within the lifetime: kept.
	within := last.Add(lifetime)
	cycle(p, batchAt(within))
	require.Equal(t, 1, p.Len())
	assert.Equal(t, 1, p.Tracks()[0].MissCount)

	beyond := last.Add(lifetime + 10*time.Millisecond)
	cycle(p, batchAt(beyond))
	assert.Equal(t, 0, p.Len())
	assert.Empty(t, p.Snapshot(beyond).Objects)
	assert.Equal(t, uint64(1), p.Stats().RemovedStale)
}

func TestOverlapRemovesLowerExistence(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)

	strong := carAt(0, 0)
	strong.ExistenceProbability = 0.8
	weak := carAt(0.5, 0)
	weak.ExistenceProbability = 0.6

	b := batchAt(t0, weak, strong)
	require.Equal(t, 2, p.Spawn(b, ego, []int{-1, -1}))

	removed := p.Prune(t0)
	assert.Equal(t, 1, removed)
	require.Equal(t, 1, p.Len())
	survivor := p.Tracks()[0]
	assert.Equal(t, uint64(2), survivor.ID, "the higher-existence track survives")
	assert.Equal(t, uint64(1), p.Stats().RemovedOverlap)
}

func TestOverlapTieBreaks(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)
	b := batchAt(t0, carAt(0, 0), carAt(0.2, 0))
	require.Equal(t, 2, p.Spawn(b, ego, []int{-1, -1}))
	p.Prune(t0)
	require.Equal(t, 1, p.Len())
	assert.Equal(t, uint64(1), p.Tracks()[0].ID, "equal tracks keep the older identity")
}

func TestOverlapThresholds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		other types.Detection
		want  int
	}{
		{
			// IoU ≈ 0.03: below the known threshold, above the unknown one.
			name:  "unknown uses the low threshold",
			other: detection(types.ClassUnknown, 2.5, 0, types.Box(1, 1, 1.5)),
			want:  1,
		},
		{
			name:  "known pair below threshold kept",
			other: detection(types.ClassCar, 4.0, 0, types.Box(4.5, 1.8, 1.5)),
			want:  2,
		},
		{
			name:  "incompatible classes never suppress",
			other: detection(types.ClassPedestrian, 0, 0, types.Cylinder(0.6, 1.7)),
			want:  2,
		},
		{
			name:  "beyond distance threshold",
			other: detection(types.ClassUnknown, 9, 0, types.Box(20, 2, 2)),
			want:  2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProcessor(t)
			car := carAt(0, 0)
			car.ExistenceProbability = 0.9
			b := batchAt(t0, car, tt.other)
			require.Equal(t, 2, p.Spawn(b, ego, []int{-1, -1}))
			p.Prune(t0)
			assert.Equal(t, tt.want, p.Len())
			assert.Equal(t, uint64(1), p.Tracks()[0].ID)
		})
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)
	dets := []types.Detection{
		carAt(0, 0), carAt(0.4, 0), carAt(0.8, 0.2),
		carAt(20, 0), carAt(20.3, 0.1),
		detection(types.ClassUnknown, 21.5, 0, types.Box(2, 2, 1)),
		detection(types.ClassPedestrian, 20, 0, types.Cylinder(0.6, 1.7)),
	}
	for i := range dets {
		dets[i].ExistenceProbability = 0.5 + 0.05*float64(i%3)
	}
	reverse := make([]int, len(dets))
	for i := range reverse {
		reverse[i] = -1
	}
	p.Spawn(batchAt(t0, dets...), ego, reverse)

	at := t0.Add(200 * time.Millisecond)
	p.Prune(at)
	first := p.TentativeSnapshot(at)
	assert.Equal(t, 0, p.Prune(at))
	second := p.TentativeSnapshot(at)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second prune changed the population (-first +second):\n%s", diff)
	}
}

func TestIdentitiesAreUniqueAndNeverReused(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)
	seenID := map[uint64]bool{}
	seenUUID := map[string]bool{}
	var lastID uint64

	at := t0
	for i := 0; i < 6; i++ {
		// Each batch is far from the previous one, so every detection spawns
		// and the earlier tracks eventually go stale.
		x := float64(i) * 100
		cycle(p, batchAt(at, carAt(x, 0), carAt(x, 50)))
		for _, tr := range p.Tracks() {
			if tr.ID > lastID {
				assert.False(t, seenID[tr.ID], "id %d reused", tr.ID)
				assert.False(t, seenUUID[tr.UUID], "uuid %s reused", tr.UUID)
				seenID[tr.ID] = true
				seenUUID[tr.UUID] = true
				lastID = tr.ID
			}
		}
		at = at.Add(800 * time.Millisecond)
	}
	assert.Len(t, seenID, 12)
	assert.Equal(t, uint64(12), lastID)
	assert.Less(t, p.Len(), 12, "old tracks must have been pruned")
}

func TestUnmatchedTracksCountMisses(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)
	cycle(p, batchAt(t0, carAt(0, 0), carAt(30, 0)))
	require.Equal(t, 2, p.Len())

	cycle(p, batchAt(t0.Add(100*time.Millisecond), carAt(0, 0)))
	tracks := p.Tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, 0, tracks[0].MissCount)
	assert.Equal(t, 2, tracks[0].UpdateCount)
	assert.Equal(t, 1, tracks[1].MissCount)
	assert.Equal(t, 1, tracks[1].UpdateCount)
}

func TestChannelHistoryIsBounded(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)
	size := p.Config().ChannelHistorySize
	at := t0
	for i := 0; i < size+3; i++ {
		b := batchAt(at, carAt(10, 0))
		if i%2 == 1 {
			b.Channel = "radar"
		}
		cycle(p, b)
		at = at.Add(50 * time.Millisecond)
	}
	require.Equal(t, 1, p.Len())
	ch := p.Tracks()[0].Channels
	require.Len(t, ch, size)
	assert.Equal(t, at.Add(-50*time.Millisecond), ch[len(ch)-1].Stamp)
	assert.InDelta(t, 10.0, ch[0].RangeM, 1e-9)
	for i := 1; i < len(ch); i++ {
		assert.True(t, ch[i].Stamp.After(ch[i-1].Stamp), "history must stay ordered")
	}
}

func TestSpawnSkipsMatchedDetections(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)
	b := batchAt(t0, carAt(0, 0), carAt(30, 0), carAt(60, 0))
	assert.Equal(t, 1, p.Spawn(b, ego, []int{0, -1, 0}))
	require.Equal(t, 1, p.Len())
	assert.InDelta(t, 30.0, p.TentativeSnapshot(t0).Objects[0].Pose.Position.X, 1e-9)
}

func TestSpawnSelectsModelByClass(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)
	b := batchAt(t0,
		carAt(0, 0),
		detection(types.ClassPedestrian, 30, 0, types.Cylinder(0.6, 1.7)),
		detection(types.ClassUnknown, 60, 0, types.Box(1, 1, 1)),
	)
	p.Spawn(b, ego, []int{-1, -1, -1})
	tracks := p.Tracks()
	require.Len(t, tracks, 3)
	assert.Equal(t, "vehicle", string(tracks[0].Model()))
	assert.Equal(t, "pedestrian", string(tracks[1].Model()))
	assert.Equal(t, "unknown", string(tracks[2].Model()))
}

func TestSnapshotExtrapolatesWithoutMutation(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t)
	at := t0
	for i := 0; i < 6; i++ {
		d := carAt(float64(i), 0)
		d.HasTwist = true
		d.Twist = types.Twist{LinearX: 10}
		d.TwistCovariance[types.CovXX] = 0.5
		d.TwistCovariance[types.CovYY] = 0.5
		d.TwistCovariance[types.CovYawYaw] = 0.01
		cycle(p, batchAt(at, d))
		at = at.Add(100 * time.Millisecond)
	}
	last := at.Add(-100 * time.Millisecond)
	now := p.Snapshot(last)
	later := p.Snapshot(last.Add(500 * time.Millisecond))
	require.Len(t, now.Objects, 1)
	require.Len(t, later.Objects, 1)
	assert.Greater(t, later.Objects[0].Pose.Position.X, now.Objects[0].Pose.Position.X+2)

	again := p.Snapshot(last)
	if diff := cmp.Diff(now, again); diff != "" {
		t.Errorf("snapshot query mutated the track (-before +after):\n%s", diff)
	}
	assert.Equal(t, []uint64{1}, ids(again))
}
