// Package query answers read requests against the current store snapshots.
//
// Every operation captures one store.View at entry and works on that pair
// only, so a refresh published mid-request never produces a torn result.
// Operations are pure in-memory computations and never block on ingest.
package query

import (
	"sort"
	"strings"
	"time"

	"github.com/theoremus-urban-solutions/transitcore/errs"
	"github.com/theoremus-urban-solutions/transitcore/gtfs"
	"github.com/theoremus-urban-solutions/transitcore/gtfsrt"
	"github.com/theoremus-urban-solutions/transitcore/metrics"
	"github.com/theoremus-urban-solutions/transitcore/store"
)

// Options configure an Engine. Zero values are usable.
type Options struct {
	// Location is the service time zone. Nil uses the agency time zone of
	// the loaded schedule, then UTC.
	Location  *time.Location
	Staleness time.Duration // realtime older than this is ignored; zero never expires
	Metrics   *metrics.Collector
	Now       func() time.Time // defaults to time.Now

	// AgencyID is assumed for routes that carry no agency_id when matching
	// agency-wide alerts.
	AgencyID string
}

type Engine struct {
	store     *store.Store
	loc       *time.Location
	staleness time.Duration
	metrics   *metrics.Collector
	now       func() time.Time
	agencyID  string
}

func NewEngine(st *store.Store, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:     st,
		loc:       opts.Location,
		staleness: opts.Staleness,
		metrics:   opts.Metrics,
		now:       opts.Now,
		agencyID:  opts.AgencyID,
	}
}

func (e *Engine) location(v store.View) *time.Location {
	if e.loc != nil {
		return e.loc
	}
	if v.Static != nil {
		return v.Static.Location(time.UTC)
	}
	return time.UTC
}

func (e *Engine) observe(op string, start time.Time, err error) {
	e.metrics.ObserveQuery(op, time.Since(start), string(errs.KindOf(err)))
}

// ListRoutes returns every route ordered by route_id; empty before the first
// static load.
func (e *Engine) ListRoutes() []gtfs.Route {
	start := time.Now()
	defer e.observe("list_routes", start, nil)

	v := e.store.View()
	if v.Static == nil {
		return []gtfs.Route{}
	}
	return v.Static.SortedRoutes()
}

// SearchStops matches query case-insensitively against stop id, name and
// code. Prefix matches rank before substring matches; ties sort by name,
// then id.
func (e *Engine) SearchStops(query string) (out []gtfs.Stop, err error) {
	start := time.Now()
	defer func() { e.observe("search_stops", start, err) }()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, errs.Ef(errs.InvalidArgument, "query.SearchStops", "query must not be blank")
	}
	v := e.store.View()
	if v.Static == nil {
		return []gtfs.Stop{}, nil
	}

	type hit struct {
		stop *gtfs.Stop
		tier int
		name string
	}
	var hits []hit
	for _, s := range v.Static.Stops {
		fields := [...]string{strings.ToLower(s.ID), strings.ToLower(s.Name), strings.ToLower(s.Code)}
		tier := -1
		for _, f := range fields {
			if f == "" {
				continue
			}
			if strings.HasPrefix(f, q) {
				tier = 0
				break
			}
			if strings.Contains(f, q) {
				tier = 1
			}
		}
		// stop_desc is free text; it only ever ranks as a substring match.
		if tier < 0 && strings.Contains(strings.ToLower(s.Desc), q) {
			tier = 1
		}
		if tier < 0 {
			continue
		}
		hits = append(hits, hit{stop: s, tier: tier, name: fields[1]})
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.name != b.name {
			return a.name < b.name
		}
		return a.stop.ID < b.stop.ID
	})
	out = make([]gtfs.Stop, len(hits))
	for i, h := range hits {
		out[i] = *h.stop
	}
	return out, nil
}

// Vehicles is the result of VehiclePositions.
type Vehicles struct {
	RouteID   string                   `json:"route_id"`
	Vehicles  []gtfsrt.VehiclePosition `json:"vehicles"`
	Freshness store.Freshness          `json:"freshness"`
}

// VehiclePositions lists vehicles serving routeID. The route of a vehicle is
// taken from its trip in the schedule, falling back to the route_id it
// reports itself.
func (e *Engine) VehiclePositions(routeID string) (res *Vehicles, err error) {
	start := time.Now()
	defer func() { e.observe("vehicle_positions", start, err) }()

	v := e.store.View()
	routeID, err = resolveRoute(v.Static, routeID)
	if err != nil {
		return nil, err
	}
	res = &Vehicles{
		RouteID:   routeID,
		Vehicles:  []gtfsrt.VehiclePosition{},
		Freshness: v.Freshness(gtfsrt.FeedVehiclePositions, e.now(), e.staleness),
	}
	if v.Realtime == nil {
		return res, nil
	}
	for _, vp := range v.Realtime.Vehicles {
		r := ""
		if v.Static != nil && vp.TripID != "" {
			r = v.Static.RouteOfTrip(vp.TripID)
		}
		if r == "" {
			r = vp.RouteID
		}
		if r == routeID {
			res.Vehicles = append(res.Vehicles, vp)
		}
	}
	sort.Slice(res.Vehicles, func(i, j int) bool { return res.Vehicles[i].VehicleID < res.Vehicles[j].VehicleID })
	return res, nil
}

// Alerts is the result of TripAlerts.
type Alerts struct {
	RouteID   string          `json:"route_id,omitempty"`
	Alerts    []gtfsrt.Alert  `json:"alerts"`
	Freshness store.Freshness `json:"freshness"`
}

// TripAlerts returns the alerts active now, optionally only those affecting
// routeID.
func (e *Engine) TripAlerts(routeID string) (res *Alerts, err error) {
	start := time.Now()
	defer func() { e.observe("trip_alerts", start, err) }()

	v := e.store.View()
	var route *gtfs.Route
	if routeID = strings.TrimSpace(routeID); routeID != "" {
		if routeID, err = resolveRoute(v.Static, routeID); err != nil {
			return nil, err
		}
		if v.Static != nil {
			route, _ = v.Static.Route(routeID)
		}
	}
	now := e.now()
	res = &Alerts{
		RouteID:   routeID,
		Alerts:    []gtfsrt.Alert{},
		Freshness: v.Freshness(gtfsrt.FeedAlerts, now, e.staleness),
	}
	if v.Realtime == nil {
		return res, nil
	}
	for i := range v.Realtime.Alerts {
		a := &v.Realtime.Alerts[i]
		if !a.ActiveAt(now) {
			continue
		}
		if routeID != "" && !affectsRoute(a, routeID, route, v.Static, e.agencyID) {
			continue
		}
		res.Alerts = append(res.Alerts, *a)
	}
	sort.Slice(res.Alerts, func(i, j int) bool { return res.Alerts[i].ID < res.Alerts[j].ID })
	return res, nil
}

// affectsRoute reports whether an informed entity of a names the route, a trip
// of it, its route type alone, or its agency alone. route and sched may be nil.
func affectsRoute(a *gtfsrt.Alert, routeID string, route *gtfs.Route, sched *gtfs.Schedule, defaultAgency string) bool {
	for _, sel := range a.Informed {
		switch {
		case sel.RouteID == routeID:
			return true
		case sel.RouteID == "" && sel.TripID != "" && sched != nil && sched.RouteOfTrip(sel.TripID) == routeID:
			return true
		case sel.AgencyWide():
			agency := defaultAgency
			if route != nil && route.AgencyID != "" {
				agency = route.AgencyID
			}
			if agency == "" || agency == sel.AgencyID {
				return true
			}
		case sel.RouteType != nil && sel.RouteID == "" && sel.TripID == "" && sel.StopID == "":
			if route != nil && int(*sel.RouteType) == route.Type {
				return true
			}
		}
	}
	return false
}
