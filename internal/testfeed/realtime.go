package testfeed

import (
	"testing"
	"time"

	p "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

// StopUpdate describes one StopTimeUpdate. Zero-valued times and unset
// delays are omitted from the message.
type StopUpdate struct {
	StopID       string
	StopSequence uint32
	ArrivalDelay *int32
	ArrivalTime  time.Time
	DepartDelay  *int32
	DepartTime   time.Time
	Skipped      bool
}

type TripUpdate struct {
	TripID      string
	RouteID     string
	StartDate   string
	Canceled    bool
	Timestamp   time.Time
	StopUpdates []StopUpdate
}

type Vehicle struct {
	ID        string
	TripID    string
	RouteID   string
	Lat, Lon  float32
	Timestamp time.Time
}

type Alert struct {
	ID          string
	Header      string
	Description string
	RouteIDs    []string
	TripIDs     []string
	StopIDs     []string
	AgencyID    string
	Start, End  time.Time
}

// Delay is a convenience for StopUpdate delay pointers.
func Delay(d time.Duration) *int32 {
	v := int32(d / time.Second)
	return &v
}

// Feed marshals a FULL_DATASET FeedMessage stamped with headerTime.
func Feed(t testing.TB, headerTime time.Time, entities ...*p.FeedEntity) []byte {
	t.Helper()
	incrementality := p.FeedHeader_FULL_DATASET
	msg := &p.FeedMessage{
		Header: &p.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(uint64(headerTime.Unix())),
		},
		Entity: entities,
	}
	data, err := proto.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TripUpdateEntity(tu TripUpdate) *p.FeedEntity {
	rel := p.TripDescriptor_SCHEDULED
	if tu.Canceled {
		rel = p.TripDescriptor_CANCELED
	}
	trip := &p.TripDescriptor{TripId: proto.String(tu.TripID), ScheduleRelationship: &rel}
	if tu.RouteID != "" {
		trip.RouteId = proto.String(tu.RouteID)
	}
	if tu.StartDate != "" {
		trip.StartDate = proto.String(tu.StartDate)
	}
	out := &p.TripUpdate{Trip: trip}
	if !tu.Timestamp.IsZero() {
		out.Timestamp = proto.Uint64(uint64(tu.Timestamp.Unix()))
	}
	for _, su := range tu.StopUpdates {
		srel := p.TripUpdate_StopTimeUpdate_SCHEDULED
		if su.Skipped {
			srel = p.TripUpdate_StopTimeUpdate_SKIPPED
		}
		stu := &p.TripUpdate_StopTimeUpdate{ScheduleRelationship: &srel}
		if su.StopID != "" {
			stu.StopId = proto.String(su.StopID)
		}
		if su.StopSequence != 0 {
			stu.StopSequence = proto.Uint32(su.StopSequence)
		}
		stu.Arrival = stopTimeEvent(su.ArrivalDelay, su.ArrivalTime)
		stu.Departure = stopTimeEvent(su.DepartDelay, su.DepartTime)
		out.StopTimeUpdate = append(out.StopTimeUpdate, stu)
	}
	return &p.FeedEntity{Id: proto.String("tu-" + tu.TripID), TripUpdate: out}
}

func stopTimeEvent(delay *int32, at time.Time) *p.TripUpdate_StopTimeEvent {
	if delay == nil && at.IsZero() {
		return nil
	}
	ev := &p.TripUpdate_StopTimeEvent{}
	if delay != nil {
		ev.Delay = proto.Int32(*delay)
	}
	if !at.IsZero() {
		ev.Time = proto.Int64(at.Unix())
	}
	return ev
}

func VehicleEntity(v Vehicle) *p.FeedEntity {
	vp := &p.VehiclePosition{
		Vehicle:  &p.VehicleDescriptor{Id: proto.String(v.ID), Label: proto.String("Bus " + v.ID)},
		Position: &p.Position{Latitude: proto.Float32(v.Lat), Longitude: proto.Float32(v.Lon)},
	}
	if v.TripID != "" || v.RouteID != "" {
		vp.Trip = &p.TripDescriptor{}
		if v.TripID != "" {
			vp.Trip.TripId = proto.String(v.TripID)
		}
		if v.RouteID != "" {
			vp.Trip.RouteId = proto.String(v.RouteID)
		}
	}
	if !v.Timestamp.IsZero() {
		vp.Timestamp = proto.Uint64(uint64(v.Timestamp.Unix()))
	}
	return &p.FeedEntity{Id: proto.String("vp-" + v.ID), Vehicle: vp}
}

func AlertEntity(a Alert) *p.FeedEntity {
	alert := &p.Alert{
		HeaderText:      translated(a.Header),
		DescriptionText: translated(a.Description),
	}
	if !a.Start.IsZero() || !a.End.IsZero() {
		tr := &p.TimeRange{}
		if !a.Start.IsZero() {
			tr.Start = proto.Uint64(uint64(a.Start.Unix()))
		}
		if !a.End.IsZero() {
			tr.End = proto.Uint64(uint64(a.End.Unix()))
		}
		alert.ActivePeriod = []*p.TimeRange{tr}
	}
	for _, r := range a.RouteIDs {
		alert.InformedEntity = append(alert.InformedEntity, &p.EntitySelector{RouteId: proto.String(r)})
	}
	for _, tr := range a.TripIDs {
		alert.InformedEntity = append(alert.InformedEntity, &p.EntitySelector{Trip: &p.TripDescriptor{TripId: proto.String(tr)}})
	}
	for _, s := range a.StopIDs {
		alert.InformedEntity = append(alert.InformedEntity, &p.EntitySelector{StopId: proto.String(s)})
	}
	if a.AgencyID != "" {
		alert.InformedEntity = append(alert.InformedEntity, &p.EntitySelector{AgencyId: proto.String(a.AgencyID)})
	}
	return &p.FeedEntity{Id: proto.String(a.ID), Alert: alert}
}

func translated(text string) *p.TranslatedString {
	if text == "" {
		return nil
	}
	return &p.TranslatedString{Translation: []*p.TranslatedString_Translation{
		{Text: proto.String(text), Language: proto.String("en")},
	}}
}
