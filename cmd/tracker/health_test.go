package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/objectfusion/internal/engine"
	"github.com/banshee-data/objectfusion/internal/timeutil"
	"github.com/banshee-data/objectfusion/internal/types"
)

func TestHealthWatcher(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var (
		stats engine.Stats
		err   error
	)
	hs := health.NewServer()
	w := &healthWatcher{
		srv:     hs,
		service: healthService,
		maxAge:  time.Second,
		stats:   func(context.Context) (engine.Stats, error) { return stats, err },
		clock:   timeutil.NewMockClock(now),
	}
	ctx := context.Background()

	tests := []struct {
		name          string
		lastPublished time.Time
		err           error
		want          healthpb.HealthCheckResponse_ServingStatus
	}{
		{"never published", time.Time{}, nil, healthpb.HealthCheckResponse_NOT_SERVING},
		{"fresh", now.Add(-500 * time.Millisecond), nil, healthpb.HealthCheckResponse_SERVING},
		{"stale", now.Add(-2 * time.Second), nil, healthpb.HealthCheckResponse_NOT_SERVING},
		{"engine stopped", now, errors.New("stopped"), healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats = engine.Stats{LastPublished: tt.lastPublished}
			err = tt.err
			assert.Equal(t, tt.want, w.check(ctx))

			resp, cerr := hs.Check(ctx, &healthpb.HealthCheckRequest{Service: healthService})
			require.NoError(t, cerr)
			assert.Equal(t, tt.want, resp.GetStatus())
		})
	}
}

func TestEnforceRetentionStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := openStore(t)
	assert.ErrorIs(t, enforceRetention(ctx, store, timeutil.NewMockClock(time.Now()), time.Hour, time.Hour), context.Canceled)
}

func TestEnforceRetentionDeletesOldSnapshots(t *testing.T) {
	store := openStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, at := range []time.Time{now.Add(-2 * time.Hour), now.Add(-time.Minute)} {
		require.NoError(t, store.Publish(ctx, types.Snapshot{Stamp: at, FrameID: "map"}))
	}

	clock := timeutil.NewMockClock(now)
	done := make(chan error, 1)
	go func() { done <- enforceRetention(ctx, store, clock, time.Hour, time.Minute) }()

	require.Eventually(t, func() bool {
		snaps, err := store.RecentSnapshots(context.Background(), 10)
		return err == nil && len(snaps) == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
