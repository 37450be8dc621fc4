package query

import (
	"sort"
	"time"

	"github.com/theoremus-urban-solutions/transitcore/errs"
	"github.com/theoremus-urban-solutions/transitcore/gtfs"
	"github.com/theoremus-urban-solutions/transitcore/gtfsrt"
	"github.com/theoremus-urban-solutions/transitcore/store"
	"github.com/theoremus-urban-solutions/transitcore/utils"
)

// OnTimeSlack is the largest deviation still reported as on time.
const OnTimeSlack = 60 * time.Second

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOnTime    Status = "on_time"
	StatusDelayed   Status = "delayed"
	StatusEarly     Status = "early"
	StatusCanceled  Status = "canceled"
	StatusSkipped   Status = "skipped"
)

// Arrival is one upcoming visit of a trip to the requested stop.
type Arrival struct {
	TripID         string       `json:"trip_id"`
	RouteID        string       `json:"route_id"`
	RouteShortName string       `json:"route_short_name,omitempty"`
	Headsign       string       `json:"headsign,omitempty"`
	StopSequence   int          `json:"stop_sequence"`
	ServiceDate    string       `json:"service_date"`
	Scheduled      time.Time    `json:"scheduled"`
	Effective      time.Time    `json:"effective"`
	DelaySeconds   *int         `json:"delay_seconds,omitempty"`
	Source         store.Source `json:"source"`
	Status         Status       `json:"status"`
	Stale          bool         `json:"stale,omitempty"`
	VehicleID      string       `json:"vehicle_id,omitempty"`
}

// Arrivals is the result of NextArrivals.
type Arrivals struct {
	Stop           gtfs.Stop       `json:"stop"`
	Now            time.Time       `json:"now"`
	HorizonMinutes int             `json:"horizon_minutes"`
	Arrivals       []Arrival       `json:"arrivals"`
	Freshness      store.Freshness `json:"freshness"`
}

// NextArrivals lists visits to stopID whose effective arrival falls within
// [now, now+horizonMinutes], earliest first. Trips are taken from the
// service days of yesterday, today and tomorrow so that after-midnight
// stop times and long horizons are covered.
func (e *Engine) NextArrivals(stopID string, horizonMinutes int) (res *Arrivals, err error) {
	start := time.Now()
	defer func() { e.observe("next_arrivals", start, err) }()

	if err := checkHorizon(horizonMinutes); err != nil {
		return nil, err
	}
	v := e.store.View()
	if v.Static == nil {
		return nil, errs.Ef(errs.Unavailable, "query.NextArrivals", "static schedule not loaded yet")
	}
	stop, err := ensureStopExists(v.Static, stopID)
	if err != nil {
		return nil, err
	}

	loc := e.location(v)
	now := e.now().In(loc)
	until := now.Add(time.Duration(horizonMinutes) * time.Minute)
	opts := store.MergeOptions{Location: loc, Now: now, Staleness: e.staleness}

	res = &Arrivals{
		Stop:           *stop,
		Now:            now,
		HorizonMinutes: horizonMinutes,
		Arrivals:       []Arrival{},
		Freshness:      v.Freshness(gtfsrt.FeedTripUpdates, now, e.staleness),
	}
	today := utils.DateOf(now, loc)
	visits := v.Static.VisitsAt(stop.ID)
	for _, day := range []utils.Date{today.AddDays(-1), today, today.AddDays(1)} {
		for _, sv := range visits {
			trip, ok := v.Static.Trip(sv.TripID)
			if !ok || !v.Static.Service(trip.ServiceID).ActiveOn(day) {
				continue
			}
			arr := store.EffectiveArrival(v, store.Visit{Trip: trip, Index: sv.Index, ServiceDay: day}, opts)
			if !arr.Known || arr.Effective.Before(now) || arr.Effective.After(until) {
				continue
			}
			res.Arrivals = append(res.Arrivals, e.arrival(v, trip, sv.Index, day, arr))
		}
	}
	sort.Slice(res.Arrivals, func(i, j int) bool {
		a, b := res.Arrivals[i], res.Arrivals[j]
		if !a.Effective.Equal(b.Effective) {
			return a.Effective.Before(b.Effective)
		}
		if a.RouteID != b.RouteID {
			return a.RouteID < b.RouteID
		}
		if a.TripID != b.TripID {
			return a.TripID < b.TripID
		}
		return a.ServiceDate < b.ServiceDate
	})
	return res, nil
}

func (e *Engine) arrival(v store.View, trip *gtfs.Trip, idx int, day utils.Date, arr store.Arrival) Arrival {
	out := Arrival{
		TripID:       trip.ID,
		RouteID:      trip.RouteID,
		Headsign:     trip.Headsign,
		StopSequence: trip.StopTimes[idx].Sequence,
		ServiceDate:  day.String(),
		Scheduled:    arr.Scheduled,
		Effective:    arr.Effective,
		DelaySeconds: arr.DelaySeconds,
		Source:       arr.Source,
		Status:       statusOf(arr),
		Stale:        arr.Stale,
	}
	if r, ok := v.Static.Route(trip.RouteID); ok {
		out.RouteShortName = r.ShortName
	}
	if v.Realtime != nil && arr.Source == store.SourceRealtime {
		if tu := v.Realtime.TripUpdate(trip.ID, day); tu != nil {
			out.VehicleID = tu.VehicleID
		}
	}
	return out
}

func statusOf(arr store.Arrival) Status {
	switch {
	case arr.Canceled:
		return StatusCanceled
	case arr.Skipped:
		return StatusSkipped
	case arr.Source != store.SourceRealtime || arr.DelaySeconds == nil:
		return StatusScheduled
	}
	d := time.Duration(*arr.DelaySeconds) * time.Second
	switch {
	case d > OnTimeSlack:
		return StatusDelayed
	case d < -OnTimeSlack:
		return StatusEarly
	default:
		return StatusOnTime
	}
}
