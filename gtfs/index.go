package gtfs

import (
	"sort"
	"time"
)

// Schedule is an immutable static snapshot. It is fully built by Parse and
// never mutated after it has been published.
type Schedule struct {
	ID        string
	FetchedAt time.Time
	Source    string // download URL or cache path
	SHA256    string

	Agency   Agency
	Routes   map[string]*Route
	Stops    map[string]*Stop
	Trips    map[string]*Trip
	Services map[string]*ServiceCalendar

	stopVisits map[string][]StopVisit // stop_id -> visits ordered by trip_id
	routeTrips map[string][]string    // route_id -> sorted trip_ids
	orphans    map[string]int         // trip_id -> stop times referencing an unknown trip
}

// Counts summarises table sizes for logs, metrics and the bundle manifest.
type Counts struct {
	Routes    int `json:"routes"`
	Stops     int `json:"stops"`
	Trips     int `json:"trips"`
	StopTimes int `json:"stop_times"`
	Services  int `json:"services"`
}

func (s *Schedule) Route(id string) (*Route, bool) {
	r, ok := s.Routes[id]
	return r, ok
}

func (s *Schedule) Stop(id string) (*Stop, bool) {
	st, ok := s.Stops[id]
	return st, ok
}

func (s *Schedule) Trip(id string) (*Trip, bool) {
	t, ok := s.Trips[id]
	return t, ok
}

// Service returns the calendar of a service_id, nil when unknown.
func (s *Schedule) Service(id string) *ServiceCalendar { return s.Services[id] }

// VisitsAt returns every scheduled visit to stopID. The slice must not be modified.
func (s *Schedule) VisitsAt(stopID string) []StopVisit { return s.stopVisits[stopID] }

// TripIDsForRoute returns the sorted trip ids of a route.
func (s *Schedule) TripIDsForRoute(routeID string) []string { return s.routeTrips[routeID] }

// RouteOfTrip resolves the route_id of a trip, "" when the trip is unknown.
func (s *Schedule) RouteOfTrip(tripID string) string {
	if t, ok := s.Trips[tripID]; ok {
		return t.RouteID
	}
	return ""
}

// SortedRoutes returns all routes ordered by route_id.
func (s *Schedule) SortedRoutes() []Route {
	out := make([]Route, 0, len(s.Routes))
	for _, r := range s.Routes {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Schedule) Counts() Counts {
	c := Counts{Routes: len(s.Routes), Stops: len(s.Stops), Trips: len(s.Trips), Services: len(s.Services)}
	for _, t := range s.Trips {
		c.StopTimes += len(t.StopTimes)
	}
	return c
}

// Location returns the agency time zone, or fallback when it is missing or unknown.
func (s *Schedule) Location(fallback *time.Location) *time.Location {
	if s.Agency.Timezone != "" {
		if loc, err := time.LoadLocation(s.Agency.Timezone); err == nil {
			return loc
		}
	}
	return fallback
}
