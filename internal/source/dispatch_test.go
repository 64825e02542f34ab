package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/objectfusion/internal/tf"
	"github.com/banshee-data/objectfusion/internal/types"
)

type recordingSubmitter struct {
	channels []string
	batches  []types.DetectionBatch
	err      error
}

func (r *recordingSubmitter) Submit(_ context.Context, channel string, b types.DetectionBatch) error {
	if r.err != nil {
		return r.err
	}
	r.channels = append(r.channels, channel)
	r.batches = append(r.batches, b)
	return nil
}

func TestDispatcherFeedsEgoAndEngine(t *testing.T) {
	t.Parallel()
	sub := &recordingSubmitter{}
	buf := tf.NewBuffer(0)
	d := Dispatcher{Submitter: sub, Ego: buf, EgoFrameID: "base_link", WorldFrameID: "map"}

	w, err := Decode([]byte(sampleLine))
	require.NoError(t, err)
	require.NoError(t, d.Handle(context.Background(), w))

	require.Equal(t, []string{"radar"}, sub.channels)
	assert.Len(t, sub.batches[0].Objects, 3)

	got, ok := buf.LookupTransform("base_link", "map", w.Stamp)
	require.True(t, ok)
	assert.InDelta(t, 10.0, got.Translation.X, 1e-12)
	assert.InDelta(t, -2.0, got.Translation.Y, 1e-12)
}

func TestDispatcherDefaultChannel(t *testing.T) {
	t.Parallel()
	sub := &recordingSubmitter{}
	w := WireBatch{Stamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), FrameID: "map"}

	err := Dispatcher{Submitter: sub}.Handle(context.Background(), w)
	assert.ErrorIs(t, err, ErrNoChannel)

	require.NoError(t, Dispatcher{Submitter: sub, DefaultChannel: "lidar"}.Handle(context.Background(), w))
	assert.Equal(t, []string{"lidar"}, sub.channels)
}

func TestDispatcherPropagatesErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("queue closed")
	d := Dispatcher{Submitter: &recordingSubmitter{err: boom}, DefaultChannel: "lidar"}
	w := WireBatch{Stamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), FrameID: "map"}
	assert.ErrorIs(t, d.Handle(context.Background(), w), boom)

	bad := w
	bad.Objects = []WireDetection{{Class: "spaceship", Shape: WireShape{Length: 1, Width: 1, Height: 1}}}
	assert.ErrorIs(t, d.Handle(context.Background(), bad), ErrMalformed)

}
