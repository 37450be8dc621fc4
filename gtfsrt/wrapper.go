package gtfsrt

import (
	"sort"
	"strings"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/theoremus-urban-solutions/transitcore/errs"
)

// Decode unmarshals a FeedMessage. Failures are errs.ParseFailed.
func Decode(data []byte) (*gtfsrtpb.FeedMessage, Header, error) {
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(data, &fm); err != nil {
		return nil, Header{}, errs.E(errs.ParseFailed, "gtfsrt.Decode", err)
	}
	var h Header
	if fm.Header != nil {
		h.Version = fm.Header.GetGtfsRealtimeVersion()
		h.Timestamp = unixTime(fm.Header.GetTimestamp())
		h.Incremental = fm.Header.GetIncrementality() == gtfsrtpb.FeedHeader_DIFFERENTIAL
	}
	return &fm, h, nil
}

// DecodeVehiclePositions extracts vehicle entities, sorted by vehicle id.
// Entities without a vehicle id fall back to the entity id.
func DecodeVehiclePositions(data []byte) ([]VehiclePosition, Header, error) {
	fm, h, err := Decode(data)
	if err != nil {
		return nil, h, err
	}
	out := make([]VehiclePosition, 0, len(fm.Entity))
	for _, e := range fm.Entity {
		v := e.GetVehicle()
		if v == nil || e.GetIsDeleted() {
			continue
		}
		vp := VehiclePosition{
			VehicleID: v.GetVehicle().GetId(),
			Label:     v.GetVehicle().GetLabel(),
			TripID:    v.GetTrip().GetTripId(),
			RouteID:   v.GetTrip().GetRouteId(),
			StartDate: v.GetTrip().GetStartDate(),
			StopID:    v.GetStopId(),
			Timestamp: unixTime(v.GetTimestamp()),
		}
		if vp.VehicleID == "" {
			vp.VehicleID = e.GetId()
		}
		if pos := v.GetPosition(); pos != nil {
			vp.Lat = float64(pos.GetLatitude())
			vp.Lon = float64(pos.GetLongitude())
			if pos.Bearing != nil {
				b := float64(pos.GetBearing())
				vp.Bearing = &b
			}
			if pos.Speed != nil {
				s := float64(pos.GetSpeed())
				vp.Speed = &s
			}
		}
		if v.CurrentStatus != nil {
			vp.CurrentStatus = strings.ToLower(v.GetCurrentStatus().String())
		}
		if v.OccupancyStatus != nil {
			vp.OccupancyStatus = strings.ToLower(v.GetOccupancyStatus().String())
		}
		out = append(out, vp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out, h, nil
}

// TripKey identifies one run of a trip. Runs of the same trip_id on
// different service days (yesterday's after-midnight run and today's) are
// distinct; an update without start_date is keyed by trip_id alone.
func TripKey(tripID, startDate string) string {
	if startDate == "" {
		return tripID
	}
	return tripID + "@" + startDate
}

// DecodeTripUpdates extracts trip updates keyed by TripKey. When a feed
// repeats a run, the update with the newer timestamp wins.
func DecodeTripUpdates(data []byte) (map[string]*TripUpdate, Header, error) {
	fm, h, err := Decode(data)
	if err != nil {
		return nil, h, err
	}
	out := make(map[string]*TripUpdate, len(fm.Entity))
	for _, e := range fm.Entity {
		tu := e.GetTripUpdate()
		if tu == nil || e.GetIsDeleted() {
			continue
		}
		trip := tu.GetTrip()
		if trip.GetTripId() == "" {
			continue
		}
		u := &TripUpdate{
			TripID:    trip.GetTripId(),
			RouteID:   trip.GetRouteId(),
			StartDate: trip.GetStartDate(),
			VehicleID: tu.GetVehicle().GetId(),
			Canceled:  trip.GetScheduleRelationship() == gtfsrtpb.TripDescriptor_CANCELED,
			Timestamp: unixTime(tu.GetTimestamp()),
		}
		if tu.Delay != nil {
			d := tu.GetDelay()
			u.Delay = &d
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			s := StopTimeUpdate{
				StopID:       stu.GetStopId(),
				Arrival:      stopTimeEvent(stu.GetArrival()),
				Departure:    stopTimeEvent(stu.GetDeparture()),
				Relationship: RelScheduled,
			}
			if stu.StopSequence != nil {
				seq := stu.GetStopSequence()
				s.StopSequence = &seq
			}
			switch stu.GetScheduleRelationship() {
			case gtfsrtpb.TripUpdate_StopTimeUpdate_SKIPPED:
				s.Relationship = RelSkipped
			case gtfsrtpb.TripUpdate_StopTimeUpdate_NO_DATA:
				s.Relationship = RelNoData
			}
			u.StopTimeUpdates = append(u.StopTimeUpdates, s)
		}
		key := TripKey(u.TripID, u.StartDate)
		if prev, ok := out[key]; ok && prev.Timestamp.After(u.Timestamp) {
			continue
		}
		out[key] = u
	}
	return out, h, nil
}

// DecodeAlerts extracts alerts sorted by id.
func DecodeAlerts(data []byte) ([]Alert, Header, error) {
	fm, h, err := Decode(data)
	if err != nil {
		return nil, h, err
	}
	out := make([]Alert, 0, len(fm.Entity))
	for _, e := range fm.Entity {
		a := e.GetAlert()
		if a == nil || e.GetIsDeleted() {
			continue
		}
		ra := Alert{
			ID:          e.GetId(),
			Header:      translatedText(a.GetHeaderText()),
			Description: translatedText(a.GetDescriptionText()),
			URL:         translatedText(a.GetUrl()),
		}
		if a.Cause != nil {
			ra.Cause = strings.ToLower(a.GetCause().String())
		}
		if a.Effect != nil {
			ra.Effect = strings.ToLower(a.GetEffect().String())
		}
		if a.SeverityLevel != nil {
			ra.Severity = strings.ToLower(a.GetSeverityLevel().String())
		}
		for _, ap := range a.GetActivePeriod() {
			ra.ActivePeriods = append(ra.ActivePeriods, ActivePeriod{
				Start: unixTime(ap.GetStart()),
				End:   unixTime(ap.GetEnd()),
			})
		}
		for _, ie := range a.GetInformedEntity() {
			sel := EntitySelector{
				AgencyID: ie.GetAgencyId(),
				RouteID:  ie.GetRouteId(),
				TripID:   ie.GetTrip().GetTripId(),
				StopID:   ie.GetStopId(),
			}
			if ie.RouteType != nil {
				rt := ie.GetRouteType()
				sel.RouteType = &rt
			}
			// Trip selectors may identify the trip only by its route.
			if sel.RouteID == "" && sel.TripID == "" {
				sel.RouteID = ie.GetTrip().GetRouteId()
			}
			ra.Informed = append(ra.Informed, sel)
		}
		out = append(out, ra)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, h, nil
}

func stopTimeEvent(ev *gtfsrtpb.TripUpdate_StopTimeEvent) StopTimeEvent {
	var out StopTimeEvent
	if ev == nil {
		return out
	}
	if ev.Delay != nil {
		d := ev.GetDelay()
		out.Delay = &d
	}
	if ev.GetTime() > 0 {
		out.Time = time.Unix(ev.GetTime(), 0)
	}
	return out
}

// translatedText prefers English, then an untagged translation, then the first one.
func translatedText(ts *gtfsrtpb.TranslatedString) string {
	if ts == nil || len(ts.Translation) == 0 {
		return ""
	}
	var untagged string
	for _, tr := range ts.Translation {
		lang := strings.ToLower(tr.GetLanguage())
		if lang == "en" || strings.HasPrefix(lang, "en-") {
			return tr.GetText()
		}
		if lang == "" && untagged == "" {
			untagged = tr.GetText()
		}
	}
	if untagged != "" {
		return untagged
	}
	return ts.Translation[0].GetText()
}

func unixTime(sec uint64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}
