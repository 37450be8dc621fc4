package gtfs

import "github.com/theoremus-urban-solutions/transitcore/utils"

// Agency is the first row of agency.txt.
type Agency struct {
	ID       string `json:"agency_id,omitempty"`
	Name     string `json:"agency_name"`
	Timezone string `json:"agency_timezone"`
}

// Route is a row of routes.txt.
type Route struct {
	ID        string `json:"route_id"`
	AgencyID  string `json:"agency_id,omitempty"`
	ShortName string `json:"route_short_name"`
	LongName  string `json:"route_long_name"`
	Type      int    `json:"route_type"` // GTFS enum: 0 tram, 1 subway, 2 rail, 3 bus, ...
	Color     string `json:"route_color,omitempty"`
	TextColor string `json:"route_text_color,omitempty"`
}

// Stop is a row of stops.txt.
type Stop struct {
	ID            string  `json:"stop_id"`
	Code          string  `json:"stop_code,omitempty"`
	Name          string  `json:"stop_name"`
	Desc          string  `json:"stop_desc,omitempty"`
	Lat           float64 `json:"stop_lat"`
	Lon           float64 `json:"stop_lon"`
	LocationType  int     `json:"location_type"`
	ParentStation string  `json:"parent_station,omitempty"`
}

// StopTime is a scheduled visit of a trip to a stop. Arrival and Departure are
// seconds from the service-day anchor and may exceed 24h.
type StopTime struct {
	StopID      string
	Sequence    int
	Arrival     int
	Departure   int
	HasTime     bool // false for untimed (interpolated) stop times
	PickupType  int  // 0=regular, 1=none, 2=phone, 3=coordinate with driver
	DropOffType int
}

// Trip is a row of trips.txt together with its stop times ordered by sequence.
type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	DirectionID string // "0", "1" or empty
	ShapeID     string
	BlockID     string
	StopTimes   []StopTime
}

// StopTimeAt returns the index of the first stop time visiting stopID, or -1.
func (t *Trip) StopTimeAt(stopID string) int {
	for i := range t.StopTimes {
		if t.StopTimes[i].StopID == stopID {
			return i
		}
	}
	return -1
}

// ScheduledArrival returns the arrival offset of stop time i. Untimed stop
// times are interpolated linearly between the surrounding timed ones; ok is
// false when no such pair exists.
func (t *Trip) ScheduledArrival(i int) (sec int, ok bool) {
	if i < 0 || i >= len(t.StopTimes) {
		return 0, false
	}
	if st := t.StopTimes[i]; st.HasTime {
		return st.Arrival, true
	}
	prev, next := -1, -1
	for j := i - 1; j >= 0; j-- {
		if t.StopTimes[j].HasTime {
			prev = j
			break
		}
	}
	for j := i + 1; j < len(t.StopTimes); j++ {
		if t.StopTimes[j].HasTime {
			next = j
			break
		}
	}
	if prev < 0 || next < 0 {
		return 0, false
	}
	from, to := t.StopTimes[prev].Departure, t.StopTimes[next].Arrival
	return from + (to-from)*(i-prev)/(next-prev), true
}

// ServiceCalendar combines a calendar.txt row with its calendar_dates.txt exceptions.
type ServiceCalendar struct {
	ServiceID string
	Weekdays  [7]bool // indexed by time.Weekday
	Start     utils.Date
	End       utils.Date
	Added     map[utils.Date]struct{}
	Removed   map[utils.Date]struct{}
}

// StopVisit points at one stop time of one trip.
type StopVisit struct {
	TripID string
	Index  int // index into Trip.StopTimes
}
