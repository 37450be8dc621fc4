package gtfs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/transitcore/errs"
	"github.com/theoremus-urban-solutions/transitcore/internal/testfeed"
	"github.com/theoremus-urban-solutions/transitcore/utils"
)

func parseHub(t *testing.T) *Schedule {
	t.Helper()
	s, err := Parse(testfeed.HubZip(t), "test://hub", time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.NoError(t, Validate(s))
	return s
}

func TestParse_HubFixture(t *testing.T) {
	s := parseHub(t)

	assert.NotEmpty(t, s.ID)
	assert.Len(t, s.SHA256, 64)
	assert.Equal(t, "test://hub", s.Source)
	assert.Equal(t, "America/Los_Angeles", s.Agency.Timezone)
	assert.Equal(t, Counts{Routes: 2, Stops: 3, Trips: 3, StopTimes: 8, Services: 2}, s.Counts())

	r, ok := s.Route("R1")
	require.True(t, ok)
	assert.Equal(t, "1", r.ShortName)
	assert.Equal(t, "Hub Line", r.LongName)
	assert.Equal(t, 3, r.Type)

	trip, ok := s.Trip("T1")
	require.True(t, ok)
	require.Len(t, trip.StopTimes, 3)
	assert.Equal(t, "PSU_HUB", trip.StopTimes[1].StopID)
	assert.Equal(t, 10*3600, trip.StopTimes[1].Arrival)
	assert.Equal(t, 1, trip.StopTimeAt("PSU_HUB"))
	assert.Equal(t, -1, trip.StopTimeAt("NOWHERE"))

	night, _ := s.Trip("N1")
	assert.Equal(t, 24*3600+30*60, night.StopTimes[0].Arrival)

	visits := s.VisitsAt("PSU_HUB")
	require.Len(t, visits, 3)
	assert.Equal(t, StopVisit{TripID: "N1", Index: 0}, visits[0])
	assert.Equal(t, []string{"T1", "T2"}, s.TripIDsForRoute("R1"))
	assert.Equal(t, "R2", s.RouteOfTrip("N1"))
	assert.Equal(t, "", s.RouteOfTrip("missing"))

	routes := s.SortedRoutes()
	require.Len(t, routes, 2)
	assert.Equal(t, "R1", routes[0].ID)
}

func TestParse_SortsStopTimesAndHandlesBOM(t *testing.T) {
	files := testfeed.HubFiles()
	files["stop_times.txt"] = []string{
		"\ufefftrip_id,arrival_time,departure_time,stop_id,stop_sequence",
		"T1,10:10:00,10:10:00,EAST_ANNEX,30",
		"T1,09:50:00,,DOWNTOWN,10",
		"T1,,,PSU_HUB,20",
	}
	s, err := Parse(testfeed.Zip(t, files), "test", time.Now())
	require.NoError(t, err)

	trip, _ := s.Trip("T1")
	require.Len(t, trip.StopTimes, 3)
	assert.Equal(t, []int{10, 20, 30}, []int{trip.StopTimes[0].Sequence, trip.StopTimes[1].Sequence, trip.StopTimes[2].Sequence})
	assert.Equal(t, trip.StopTimes[0].Arrival, trip.StopTimes[0].Departure, "missing departure copies arrival")
	assert.False(t, trip.StopTimes[1].HasTime)
}

func TestParse_Failures(t *testing.T) {
	t.Run("not a zip", func(t *testing.T) {
		_, err := Parse([]byte("definitely not a zip"), "test", time.Now())
		assert.True(t, errors.Is(err, errs.ParseFailed))
	})
	t.Run("bad time", func(t *testing.T) {
		files := testfeed.HubFiles()
		files["stop_times.txt"] = append(files["stop_times.txt"], "T1,10:99:00,10:99:00,PSU_HUB,9")
		_, err := Parse(testfeed.Zip(t, files), "test", time.Now())
		assert.True(t, errors.Is(err, errs.ParseFailed))
		assert.Contains(t, err.Error(), "stop_times.txt")
	})
	t.Run("no routes", func(t *testing.T) {
		files := testfeed.HubFiles()
		files["routes.txt"] = []string{"route_id,route_short_name"}
		_, err := Parse(testfeed.Zip(t, files), "test", time.Now())
		assert.Equal(t, errs.EmptySnapshotRejected, errs.KindOf(err))
	})
}

func TestServiceCalendar_ActiveOn(t *testing.T) {
	s := parseHub(t)
	weekday := s.Service("WEEKDAY")
	require.NotNil(t, weekday)

	tests := []struct {
		date string
		want bool
	}{
		{"20240703", true},  // Wednesday
		{"20240704", false}, // removed holiday
		{"20240706", false}, // Saturday
		{"20231229", false}, // before start
		{"20310101", false}, // after end
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			d, err := utils.ParseDate(tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.want, weekday.ActiveOn(d))
		})
	}

	added := newServiceCalendar("EXTRA")
	d := utils.Date{Year: 2024, Month: time.December, Day: 25}
	added.Added[d] = struct{}{}
	assert.True(t, added.ActiveOn(d), "calendar_dates-only service")
	assert.False(t, added.ActiveOn(d.AddDays(1)))

	var missing *ServiceCalendar
	assert.False(t, missing.ActiveOn(d))
}

func TestValidate_ReferentialIntegrity(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(files map[string][]string)
		want   string
	}{
		{
			name: "unknown stop",
			mutate: func(f map[string][]string) {
				f["stop_times.txt"] = append(f["stop_times.txt"], "T1,11:00:00,11:00:00,GHOST,4")
			},
			want: `unknown stop "GHOST"`,
		},
		{
			name: "unknown trip",
			mutate: func(f map[string][]string) {
				f["stop_times.txt"] = append(f["stop_times.txt"], "GHOST_TRIP,11:00:00,11:00:00,PSU_HUB,1")
			},
			want: `unknown trip "GHOST_TRIP"`,
		},
		{
			name: "unknown route",
			mutate: func(f map[string][]string) {
				f["trips.txt"] = append(f["trips.txt"], "R9,DAILY,T9,Nowhere,0")
			},
			want: `unknown route "R9"`,
		},
		{
			name: "unknown service",
			mutate: func(f map[string][]string) {
				f["trips.txt"] = append(f["trips.txt"], "R1,SUNDAYS,T9,Nowhere,0")
			},
			want: `unknown service "SUNDAYS"`,
		},
		{
			name: "repeated sequence",
			mutate: func(f map[string][]string) {
				f["stop_times.txt"] = append(f["stop_times.txt"], "T1,10:05:00,10:05:00,PSU_HUB,2")
			},
			want: "repeats stop_sequence 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := testfeed.HubFiles()
			tt.mutate(files)
			s, err := Parse(testfeed.Zip(t, files), "test", time.Now())
			require.NoError(t, err)

			err = Validate(s)
			require.Error(t, err)
			assert.Equal(t, errs.ParseFailed, errs.KindOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSchedule_Location(t *testing.T) {
	s := parseHub(t)
	assert.Equal(t, "America/Los_Angeles", s.Location(time.UTC).String())

	s.Agency.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, s.Location(time.UTC))
}
