package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/objectfusion/internal/config"
	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/types"
)

var t0 = time.Unix(1_700_000_000, 0)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func twoChannels() Config {
	return Config{
		Channels: []ChannelConfig{
			{ID: "lidar", Topic: "/lidar", CanSpawn: true, Blocking: true},
			{ID: "radar", Topic: "/radar", Blocking: false},
		},
		MaxQueueSize: 4,
	}
}

func mustManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func batch(at time.Time, n int) types.DetectionBatch {
	b := types.DetectionBatch{Stamp: at, FrameID: "base_link"}
	for i := 0; i < n; i++ {
		b.Objects = append(b.Objects, types.Detection{
			Classification: types.Certain(types.ClassCar),
			Pose:           geom.PoseXYYaw(float64(i), 0, 0),
			Shape:          types.Box(4, 2, 1.5),
		})
	}
	return b
}

func stamps(bs []types.DetectionBatch) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Channel + "@" + b.Stamp.Sub(t0).String()
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"empty", func(c *Config) { c.Channels = nil }, ErrNoChannels},
		{"duplicate", func(c *Config) { c.Channels[1].ID = "lidar" }, ErrDuplicateChannel},
		{"missing id", func(c *Config) { c.Channels[0].ID = "" }, ErrInvalidChannel},
		{"missing topic", func(c *Config) { c.Channels[1].Topic = "" }, ErrInvalidChannel},
		{"negative timeout", func(c *Config) { c.Channels[0].Timeout = -time.Second }, ErrInvalidChannel},
		{"zero queue", func(c *Config) { c.MaxQueueSize = 0 }, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := twoChannels()
			tt.mutate(&cfg)
			_, err := NewManager(cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfigFromTuning(t *testing.T) {
	t.Parallel()
	cfg, err := config.ParseTuningConfig([]byte(`{
		"input_channels": [
			{"name": "lidar_centerpoint", "topic": "/objects/lidar", "timeout": "250ms"},
			{"name": "radar", "topic": "/objects/radar", "can_spawn_new_tracker": false, "blocking": false, "short_name": "Rd"}
		],
		"max_queue_size": 7
	}`))
	require.NoError(t, err)

	got := ConfigFromTuning(cfg)
	require.NoError(t, got.Validate())
	assert.Equal(t, 7, got.MaxQueueSize)
	require.Len(t, got.Channels, 2)
	assert.Equal(t, ChannelConfig{
		ID: "lidar_centerpoint", Topic: "/objects/lidar", DisplayName: "lidar_centerpoint",
		ShortName: "lid", CanSpawn: true, Blocking: true, Timeout: ms(250),
	}, got.Channels[0])
	assert.False(t, got.Channels[1].CanSpawn)
	assert.False(t, got.Channels[1].Blocking)
	assert.Equal(t, "Rd", got.Channels[1].ShortName)
}

func TestIngestUnknownChannel(t *testing.T) {
	t.Parallel()
	m := mustManager(t, twoChannels())
	err := m.Ingest("camera", batch(t0, 1))
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.False(t, m.IsSpawnEnabled("camera"))
	assert.True(t, m.IsSpawnEnabled("lidar"))
	assert.False(t, m.IsSpawnEnabled("radar"))
}

func TestIngestRejectsOutOfOrder(t *testing.T) {
	t.Parallel()
	m := mustManager(t, twoChannels())
	require.NoError(t, m.Ingest("lidar", batch(t0.Add(ms(100)), 1)))
	require.NoError(t, m.Ingest("lidar", batch(t0.Add(ms(100)), 1)), "equal stamps are accepted")
	err := m.Ingest("lidar", batch(t0.Add(ms(50)), 1))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	// Other channels are independent.
	require.NoError(t, m.Ingest("radar", batch(t0, 1)))

	st := m.Stats()
	assert.Equal(t, uint64(2), st[0].Received)
	assert.Equal(t, uint64(1), st[0].Rejected)
	assert.Equal(t, 2, st[0].Queued)
	assert.Equal(t, t0.Add(ms(100)), st[0].Watermark)
}

func TestIngestCopiesBatch(t *testing.T) {
	t.Parallel()
	m := mustManager(t, twoChannels())
	b := batch(t0, 2)
	require.NoError(t, m.Ingest("lidar", b))
	b.Objects[0].Pose.Position.X = 99

	ready, ok := m.TryGetReadyBatches(t0)
	require.True(t, ok)
	require.Len(t, ready, 1)
	assert.Equal(t, "lidar", ready[0].Channel)
	assert.Equal(t, 0.0, ready[0].Objects[0].Pose.Position.X)
}

func TestQueueDropsOldest(t *testing.T) {
	t.Parallel()
	m := mustManager(t, twoChannels())
	for i := 0; i < 6; i++ {
		require.NoError(t, m.Ingest("lidar", batch(t0.Add(ms(10*i)), 1)))
	}
	st := m.Stats()
	assert.Equal(t, uint64(2), st[0].Dropped)
	assert.Equal(t, 4, st[0].Queued)

	ready, ok := m.TryGetReadyBatches(t0.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, []string{"lidar@20ms", "lidar@30ms", "lidar@40ms", "lidar@50ms"}, stamps(ready))
}

func TestBlockingChannelHoldsHorizon(t *testing.T) {
	t.Parallel()
	m := mustManager(t, twoChannels())

	// Radar alone never makes the manager ready while lidar is silent.
	require.NoError(t, m.Ingest("radar", batch(t0, 1)))
	_, ok := m.TryGetReadyBatches(t0.Add(ms(10)))
	assert.False(t, ok)

	require.NoError(t, m.Ingest("radar", batch(t0.Add(ms(60)), 1)))
	require.NoError(t, m.Ingest("lidar", batch(t0.Add(ms(50)), 1)))

	// Horizon is the lidar watermark: radar@60ms stays queued.
	ready, ok := m.TryGetReadyBatches(t0.Add(ms(100)))
	require.True(t, ok)
	assert.Equal(t, []string{"radar@0s", "lidar@50ms"}, stamps(ready))

	require.NoError(t, m.Ingest("lidar", batch(t0.Add(ms(100)), 1)))
	ready, ok = m.TryGetReadyBatches(t0.Add(ms(120)))
	require.True(t, ok)
	assert.Equal(t, []string{"radar@60ms", "lidar@100ms"}, stamps(ready))

	_, ok = m.TryGetReadyBatches(t0.Add(ms(130)))
	assert.False(t, ok, "everything has been delivered")

	st := m.Stats()
	assert.Equal(t, uint64(2), st[0].Delivered)
	assert.Equal(t, uint64(2), st[1].Delivered)
}

func TestReadyOrderingBreaksTiesByChannel(t *testing.T) {
	t.Parallel()
	cfg := twoChannels()
	cfg.Channels[1].Blocking = true
	m := mustManager(t, cfg)
	require.NoError(t, m.Ingest("radar", batch(t0, 1)))
	require.NoError(t, m.Ingest("lidar", batch(t0, 1)))
	ready, ok := m.TryGetReadyBatches(t0)
	require.True(t, ok)
	assert.Equal(t, []string{"lidar@0s", "radar@0s"}, stamps(ready))
}

func TestHorizonNeverExceedsQueryTime(t *testing.T) {
	t.Parallel()
	m := mustManager(t, twoChannels())
	require.NoError(t, m.Ingest("lidar", batch(t0.Add(ms(200)), 1)))
	_, ok := m.TryGetReadyBatches(t0.Add(ms(100)))
	assert.False(t, ok)
	ready, ok := m.TryGetReadyBatches(t0.Add(ms(200)))
	require.True(t, ok)
	assert.Len(t, ready, 1)
}

func TestSilentBlockingChannelTimesOut(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Channels: []ChannelConfig{
			{ID: "lidar", Topic: "/lidar", CanSpawn: true, Blocking: true, Timeout: ms(300)},
			{ID: "camera", Topic: "/camera", CanSpawn: true, Blocking: true, Timeout: ms(200)},
		},
		MaxQueueSize: 10,
	}
	m := mustManager(t, cfg)

	// First query fixes the start; camera has never delivered.
	_, ok := m.TryGetReadyBatches(t0)
	assert.False(t, ok)

	require.NoError(t, m.Ingest("lidar", batch(t0.Add(ms(100)), 1)))
	_, ok = m.TryGetReadyBatches(t0.Add(ms(150)))
	assert.False(t, ok, "camera is still within its timeout")

	ready, ok := m.TryGetReadyBatches(t0.Add(ms(250)))
	require.True(t, ok)
	assert.Equal(t, []string{"lidar@100ms"}, stamps(ready))

	// Camera catches up, then lags: once its watermark is older than the
	// timeout it stops holding back lidar.
	require.NoError(t, m.Ingest("camera", batch(t0.Add(ms(260)), 1)))
	require.NoError(t, m.Ingest("lidar", batch(t0.Add(ms(300)), 1)))
	require.NoError(t, m.Ingest("lidar", batch(t0.Add(ms(400)), 1)))
	ready, ok = m.TryGetReadyBatches(t0.Add(ms(400)))
	require.True(t, ok)
	assert.Equal(t, []string{"camera@260ms"}, stamps(ready))

	ready, ok = m.TryGetReadyBatches(t0.Add(ms(500)))
	require.True(t, ok)
	assert.Equal(t, []string{"lidar@300ms", "lidar@400ms"}, stamps(ready))
}

func TestIngestIsSafeForConcurrentUse(t *testing.T) {
	t.Parallel()
	cfg := twoChannels()
	cfg.MaxQueueSize = 1000
	m := mustManager(t, cfg)

	done := make(chan struct{})
	for _, id := range []string{"lidar", "radar"} {
		go func(id string) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				if err := m.Ingest(id, batch(t0.Add(ms(i)), 1)); err != nil {
					t.Error(err)
					return
				}
			}
		}(id)
	}
	<-done
	<-done

	ready, ok := m.TryGetReadyBatches(t0.Add(time.Second))
	require.True(t, ok)
	assert.Len(t, ready, 200)
	for i := 1; i < len(ready); i++ {
		assert.False(t, ready[i].Stamp.Before(ready[i-1].Stamp), "ready batches must be time ordered")
	}
}
