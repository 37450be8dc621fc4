package gtfsrt

import (
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/theoremus-urban-solutions/transitcore/errs"
	"github.com/theoremus-urban-solutions/transitcore/internal/testfeed"
)

var feedTime = time.Date(2024, time.March, 4, 17, 45, 0, 0, time.UTC)

func TestDecode_Garbage(t *testing.T) {
	_, _, err := Decode([]byte{0xff, 0xff, 0xff})
	assert.Equal(t, errs.ParseFailed, errs.KindOf(err))
}

func TestDecodeVehiclePositions(t *testing.T) {
	data := testfeed.Feed(t, feedTime,
		testfeed.VehicleEntity(testfeed.Vehicle{ID: "v2", TripID: "T1", Lat: 45.5, Lon: -122.6, Timestamp: feedTime}),
		testfeed.VehicleEntity(testfeed.Vehicle{ID: "v1", RouteID: "R2", Lat: 45.4, Lon: -122.7}),
	)
	vehicles, h, err := DecodeVehiclePositions(data)
	require.NoError(t, err)

	assert.Equal(t, "2.0", h.Version)
	assert.True(t, h.Timestamp.Equal(feedTime))
	assert.False(t, h.Incremental)

	require.Len(t, vehicles, 2)
	assert.Equal(t, "v1", vehicles[0].VehicleID)
	assert.Equal(t, "R2", vehicles[0].RouteID)
	assert.True(t, vehicles[0].Timestamp.IsZero())
	assert.Equal(t, "T1", vehicles[1].TripID)
	assert.Equal(t, "Bus v2", vehicles[1].Label)
	assert.InDelta(t, 45.5, vehicles[1].Lat, 1e-4)
	assert.Nil(t, vehicles[1].Bearing)
}

func TestDecodeTripUpdates(t *testing.T) {
	data := testfeed.Feed(t, feedTime,
		testfeed.TripUpdateEntity(testfeed.TripUpdate{
			TripID:    "T1",
			Timestamp: feedTime,
			StopUpdates: []testfeed.StopUpdate{
				{StopID: "PSU_HUB", StopSequence: 2, ArrivalDelay: testfeed.Delay(5 * time.Minute)},
				{StopID: "EAST_ANNEX", Skipped: true},
				{StopSequence: 4, DepartTime: feedTime.Add(time.Hour)},
			},
		}),
		testfeed.TripUpdateEntity(testfeed.TripUpdate{TripID: "T2", Canceled: true}),
	)
	updates, _, err := DecodeTripUpdates(data)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	t1 := updates["T1"]
	require.NotNil(t, t1)
	assert.False(t, t1.Canceled)
	require.Len(t, t1.StopTimeUpdates, 3)

	first := t1.StopTimeUpdates[0]
	assert.Equal(t, "PSU_HUB", first.StopID)
	require.NotNil(t, first.StopSequence)
	assert.Equal(t, uint32(2), *first.StopSequence)
	require.NotNil(t, first.Arrival.Delay)
	assert.Equal(t, int32(300), *first.Arrival.Delay)
	assert.False(t, first.Departure.Known())
	assert.Equal(t, RelScheduled, first.Relationship)

	assert.Equal(t, RelSkipped, t1.StopTimeUpdates[1].Relationship)
	assert.Nil(t, t1.StopTimeUpdates[1].StopSequence)
	assert.True(t, t1.StopTimeUpdates[2].Departure.Time.Equal(feedTime.Add(time.Hour)))

	assert.True(t, updates["T2"].Canceled)
}

func TestDecodeTripUpdates_NewestDuplicateWins(t *testing.T) {
	older := testfeed.TripUpdateEntity(testfeed.TripUpdate{TripID: "T1", Timestamp: feedTime.Add(-time.Minute)})
	newer := testfeed.TripUpdateEntity(testfeed.TripUpdate{TripID: "T1", Timestamp: feedTime, Canceled: true})
	older.Id = proto.String("a")
	newer.Id = proto.String("b")

	updates, _, err := DecodeTripUpdates(testfeed.Feed(t, feedTime, newer, older))
	require.NoError(t, err)
	assert.True(t, updates["T1"].Canceled)
}

func TestDecodeTripUpdates_RunsKeyedByStartDate(t *testing.T) {
	yesterday := testfeed.TripUpdateEntity(testfeed.TripUpdate{TripID: "N1", StartDate: "20240303", Timestamp: feedTime,
		StopUpdates: []testfeed.StopUpdate{{StopID: "PSU_HUB", ArrivalDelay: testfeed.Delay(time.Minute)}}})
	today := testfeed.TripUpdateEntity(testfeed.TripUpdate{TripID: "N1", StartDate: "20240304", Timestamp: feedTime,
		StopUpdates: []testfeed.StopUpdate{{StopID: "PSU_HUB", ArrivalDelay: testfeed.Delay(2 * time.Minute)}}})
	yesterday.Id = proto.String("a")
	today.Id = proto.String("b")

	updates, _, err := DecodeTripUpdates(testfeed.Feed(t, feedTime, yesterday, today))
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, int32(60), *updates[TripKey("N1", "20240303")].StopTimeUpdates[0].Arrival.Delay)
	assert.Equal(t, int32(120), *updates[TripKey("N1", "20240304")].StopTimeUpdates[0].Arrival.Delay)
	assert.Equal(t, "N1", TripKey("N1", ""))
}

func TestDecodeAlerts(t *testing.T) {
	data := testfeed.Feed(t, feedTime,
		testfeed.AlertEntity(testfeed.Alert{ID: "b", Header: "Detour", RouteIDs: []string{"R1"}, Start: feedTime}),
		testfeed.AlertEntity(testfeed.Alert{ID: "a", Header: "Strike", AgencyID: "TRI"}),
	)
	alerts, _, err := DecodeAlerts(data)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, "a", alerts[0].ID)
	require.Len(t, alerts[0].Informed, 1)
	assert.True(t, alerts[0].Informed[0].AgencyWide())

	assert.Equal(t, "Detour", alerts[1].Header)
	assert.Equal(t, "R1", alerts[1].Informed[0].RouteID)
	assert.False(t, alerts[1].Informed[0].AgencyWide())
	require.Len(t, alerts[1].ActivePeriods, 1)
	assert.True(t, alerts[1].ActivePeriods[0].End.IsZero())
}

func TestAlert_ActiveAt(t *testing.T) {
	start := feedTime
	end := feedTime.Add(time.Hour)
	tests := []struct {
		name    string
		periods []ActivePeriod
		at      time.Time
		want    bool
	}{
		{name: "no periods", at: feedTime, want: true},
		{name: "inside", periods: []ActivePeriod{{Start: start, End: end}}, at: start.Add(time.Minute), want: true},
		{name: "before", periods: []ActivePeriod{{Start: start, End: end}}, at: start.Add(-time.Minute), want: false},
		{name: "after", periods: []ActivePeriod{{Start: start, End: end}}, at: end.Add(time.Second), want: false},
		{name: "open end", periods: []ActivePeriod{{Start: start}}, at: end.Add(48 * time.Hour), want: true},
		{name: "open start", periods: []ActivePeriod{{End: end}}, at: start.Add(-48 * time.Hour), want: true},
		{
			name:    "second period",
			periods: []ActivePeriod{{Start: start, End: end}, {Start: end.Add(time.Hour)}},
			at:      end.Add(2 * time.Hour),
			want:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Alert{ActivePeriods: tt.periods}
			assert.Equal(t, tt.want, a.ActiveAt(tt.at))
		})
	}
}

func TestTranslatedText(t *testing.T) {
	tr := func(text, lang string) *gtfsrtpb.TranslatedString_Translation {
		out := &gtfsrtpb.TranslatedString_Translation{Text: proto.String(text)}
		if lang != "" {
			out.Language = proto.String(lang)
		}
		return out
	}
	assert.Equal(t, "", translatedText(nil))
	assert.Equal(t, "hello", translatedText(&gtfsrtpb.TranslatedString{
		Translation: []*gtfsrtpb.TranslatedString_Translation{tr("hola", "es"), tr("hello", "en-US")},
	}))
	assert.Equal(t, "plain", translatedText(&gtfsrtpb.TranslatedString{
		Translation: []*gtfsrtpb.TranslatedString_Translation{tr("bonjour", "fr"), tr("plain", "")},
	}))
	assert.Equal(t, "bonjour", translatedText(&gtfsrtpb.TranslatedString{
		Translation: []*gtfsrtpb.TranslatedString_Translation{tr("bonjour", "fr"), tr("hallo", "de")},
	}))
}
