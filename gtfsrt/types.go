package gtfsrt

import "time"

// FeedKind names one of the three realtime feeds. The values double as the
// upstream Type query parameter.
type FeedKind string

const (
	FeedVehiclePositions FeedKind = "VehiclePosition"
	FeedTripUpdates      FeedKind = "TripUpdate"
	FeedAlerts           FeedKind = "Alert"
)

// FeedKinds lists every feed in polling order.
var FeedKinds = []FeedKind{FeedVehiclePositions, FeedTripUpdates, FeedAlerts}

// Header is the decoded FeedHeader.
type Header struct {
	Version     string
	Timestamp   time.Time // zero when the producer omitted it
	Incremental bool
}

// VehiclePosition is one vehicle entity.
type VehiclePosition struct {
	VehicleID       string    `json:"vehicle_id"`
	Label           string    `json:"label,omitempty"`
	TripID          string    `json:"trip_id,omitempty"`
	RouteID         string    `json:"route_id,omitempty"`
	StartDate       string    `json:"start_date,omitempty"`
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	Bearing         *float64  `json:"bearing,omitempty"`
	Speed           *float64  `json:"speed,omitempty"`
	StopID          string    `json:"stop_id,omitempty"`
	CurrentStatus   string    `json:"current_status,omitempty"`
	OccupancyStatus string    `json:"occupancy_status,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Relationship is a StopTimeUpdate schedule relationship.
type Relationship string

const (
	RelScheduled Relationship = "scheduled"
	RelSkipped   Relationship = "skipped"
	RelNoData    Relationship = "no_data"
)

// StopTimeEvent is a predicted arrival or departure. Either field may be absent.
type StopTimeEvent struct {
	Delay *int32    // seconds relative to the schedule
	Time  time.Time // absolute prediction, zero when absent
}

// Known reports whether the event carries any prediction.
func (e StopTimeEvent) Known() bool { return e.Delay != nil || !e.Time.IsZero() }

type StopTimeUpdate struct {
	StopID       string
	StopSequence *uint32
	Arrival      StopTimeEvent
	Departure    StopTimeEvent
	Relationship Relationship
}

// TripUpdate carries the predictions for one trip.
type TripUpdate struct {
	TripID          string
	RouteID         string
	StartDate       string
	VehicleID       string
	Canceled        bool
	Timestamp       time.Time
	Delay           *int32 // trip-level delay, used when no stop update applies
	StopTimeUpdates []StopTimeUpdate
}

// ActivePeriod is a half-open window; zero ends are unbounded.
type ActivePeriod struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// EntitySelector is one informed entity of an alert.
type EntitySelector struct {
	AgencyID  string `json:"agency_id,omitempty"`
	RouteID   string `json:"route_id,omitempty"`
	RouteType *int32 `json:"route_type,omitempty"`
	TripID    string `json:"trip_id,omitempty"`
	StopID    string `json:"stop_id,omitempty"`
}

// AgencyWide reports whether the selector names nothing narrower than an agency.
func (s EntitySelector) AgencyWide() bool {
	return s.AgencyID != "" && s.RouteID == "" && s.RouteType == nil && s.TripID == "" && s.StopID == ""
}

type Alert struct {
	ID            string           `json:"id"`
	Header        string           `json:"header"`
	Description   string           `json:"description"`
	URL           string           `json:"url,omitempty"`
	Cause         string           `json:"cause,omitempty"`
	Effect        string           `json:"effect,omitempty"`
	Severity      string           `json:"severity,omitempty"`
	ActivePeriods []ActivePeriod   `json:"active_periods,omitempty"`
	Informed      []EntitySelector `json:"informed_entities,omitempty"`
}

// ActiveAt reports whether t falls inside any active period. An alert without
// periods is always active.
func (a *Alert) ActiveAt(t time.Time) bool {
	if len(a.ActivePeriods) == 0 {
		return true
	}
	for _, p := range a.ActivePeriods {
		if !p.Start.IsZero() && t.Before(p.Start) {
			continue
		}
		if !p.End.IsZero() && t.After(p.End) {
			continue
		}
		return true
	}
	return false
}
