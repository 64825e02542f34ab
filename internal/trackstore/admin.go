package trackstore

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/objectfusion/internal/httputil"
)

// AttachAdminRoutes mounts the store's debug pages under /debug/ on mux:
// a live SQL console and JSON views of recent snapshots and track histories.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.DB, &tailsql.DBOptions{
		Label: "Track store",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("snapshots", "Most recent published snapshots (JSON, ?limit=)", http.HandlerFunc(s.handleSnapshots))
	debug.Handle("track", "Publication history of one track (JSON, ?id=)", http.HandlerFunc(s.handleTrack))
	debug.KVFunc("Stored snapshots", func() any {
		var n int64
		if err := s.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
			return err.Error()
		}
		return n
	})
	return nil
}

func (s *Store) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	snaps, err := s.RecentSnapshots(r.Context(), limit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, snaps)
}

func (s *Store) handleTrack(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid track id")
		return
	}
	points, err := s.TrackHistory(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, points)
}
