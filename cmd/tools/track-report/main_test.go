package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/trackstore"
	"github.com/banshee-data/objectfusion/internal/types"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *trackstore.Store {
	t.Helper()
	store, err := trackstore.Open(filepath.Join(t.TempDir(), "tracks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for i := range 20 {
		at := start.Add(time.Duration(i) * 100 * time.Millisecond)
		snap := types.Snapshot{Stamp: at, FrameID: "map"}
		for id := uint64(1); id <= 2; id++ {
			snap.Objects = append(snap.Objects, types.TrackedObject{
				ID:     id,
				UUID:   "t",
				Label:  types.ClassCar,
				Status: types.TrackConfirmed,
				Model:  "bicycle",
				Pose:   geom.PoseXYYaw(float64(i), 3*float64(id), 0),
				Shape:  types.Box(4.5, 1.8, 1.5),
			})
		}
		require.NoError(t, store.Publish(context.Background(), snap))
	}
	return store
}

func TestReportWritesFiles(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	from, to, err := window(ctx, store, "", "")
	require.NoError(t, err)
	assert.Equal(t, start, from)
	assert.True(t, to.After(start.Add(1900*time.Millisecond)))

	out := filepath.Join(t.TempDir(), "report")
	files, err := report(ctx, store, from, to, time.Second, out)
	require.NoError(t, err)
	require.Len(t, files, 2)

	png, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	html, err := os.ReadFile(files[1])
	require.NoError(t, err)
	assert.Contains(t, string(html), "distinct tracks")
}

func TestWindowRejects(t *testing.T) {
	store, err := trackstore.Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, _, err = window(ctx, store, "", "")
	assert.Error(t, err)

	_, _, err = window(ctx, seededStore(t), "yesterday", "")
	assert.ErrorContains(t, err, "-from")
}

func TestRenderEmptyTrajectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.png")
	require.NoError(t, renderTrajectories(nil, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
