package engine

import (
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/objectfusion/internal/httputil"
)

// AttachAdminRoutes mounts JSON views of the engine under /debug/ on mux.
func (r *Runner) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("engine", "Engine, tracker and input counters (JSON)", http.HandlerFunc(r.handleStats))
	debug.Handle("objects", "Confirmed tracks extrapolated to now (JSON)", http.HandlerFunc(r.handleObjects))
}

func (r *Runner) handleStats(w http.ResponseWriter, req *http.Request) {
	st, err := r.Stats(req.Context())
	if err != nil {
		httputil.Unavailable(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, st)
}

func (r *Runner) handleObjects(w http.ResponseWriter, req *http.Request) {
	at := r.clock.Now()
	if v := req.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			httputil.BadRequest(w, "invalid at: want RFC 3339")
			return
		}
		at = t
	}
	snap, err := r.Snapshot(req.Context(), at)
	if err != nil {
		httputil.Unavailable(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, snap)
}
