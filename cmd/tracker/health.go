package main

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/objectfusion/internal/engine"
	"github.com/banshee-data/objectfusion/internal/timeutil"
)

// healthWatcher reports the tracker as serving while snapshots keep being
// published. The overall ("") status follows the service status.
type healthWatcher struct {
	srv     *health.Server
	service string
	maxAge  time.Duration
	stats   func(context.Context) (engine.Stats, error)
	clock   timeutil.Clock
}

func (w *healthWatcher) check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	st, err := w.stats(ctx)
	switch {
	case err != nil:
		status = healthpb.HealthCheckResponse_NOT_SERVING
	case st.LastPublished.IsZero(), w.clock.Now().Sub(st.LastPublished) > w.maxAge:
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	w.srv.SetServingStatus(w.service, status)
	w.srv.SetServingStatus("", status)
	return status
}

func (w *healthWatcher) run(ctx context.Context, every time.Duration) {
	ticker := w.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		w.check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
	}
}
