package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/theoremus-urban-solutions/transitcore/errs"
	"github.com/theoremus-urban-solutions/transitcore/gtfs"
	"github.com/theoremus-urban-solutions/transitcore/query"
)

type routesResponse struct {
	Routes []gtfs.Route `json:"routes"`
	Count  int          `json:"count"`
}

type stopsResponse struct {
	Query string      `json:"query"`
	Stops []gtfs.Stop `json:"stops"`
	Count int         `json:"count"`
}

// GET /api/routes
func (h *handlers) listRoutes(w http.ResponseWriter, r *http.Request) {
	routes := h.Engine.ListRoutes()
	writeJSON(w, http.StatusOK, routesResponse{Routes: routes, Count: len(routes)})
}

// GET /api/stops?query=
func (h *handlers) searchStops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	stops, err := h.Engine.SearchStops(q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stopsResponse{Query: q, Stops: stops, Count: len(stops)})
}

// GET /api/stops/{stopID}/arrivals?horizon_minutes=
func (h *handlers) nextArrivals(w http.ResponseWriter, r *http.Request) {
	horizon := query.DefaultHorizonMinutes
	if s := strings.TrimSpace(r.URL.Query().Get("horizon_minutes")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, errs.Ef(errs.InvalidArgument, "api.nextArrivals", "horizon_minutes must be an integer"))
			return
		}
		horizon = v
	}
	res, err := h.Engine.NextArrivals(chi.URLParam(r, "stopID"), horizon)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/routes/{routeID}/vehicles
func (h *handlers) vehiclePositions(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.VehiclePositions(chi.URLParam(r, "routeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/alerts?route_id=
func (h *handlers) tripAlerts(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.TripAlerts(r.URL.Query().Get("route_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type refreshResponse struct {
	Status     string `json:"status"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Duration   string `json:"duration,omitempty"`
}

// POST /api/admin/static/refresh[?async=true]
func (h *handlers) refreshStatic(w http.ResponseWriter, r *http.Request) {
	if h.Loader == nil {
		writeError(w, errs.Ef(errs.Unavailable, "api.refreshStatic", "static loader not configured"))
		return
	}
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.Loader.Trigger()
		writeJSON(w, http.StatusAccepted, refreshResponse{Status: "scheduled"})
		return
	}
	start := time.Now()
	if err := h.Loader.Refresh(r.Context(), true); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Status:     "refreshed",
		SnapshotID: h.Loader.Status().SnapshotID,
		Duration:   time.Since(start).Round(time.Millisecond).String(),
	})
}
