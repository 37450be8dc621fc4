// Package testfeed builds in-memory GTFS bundles and GTFS-Realtime messages for tests.
package testfeed

import (
	"archive/zip"
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Timezone of the hub fixture agency.
const Timezone = "America/Los_Angeles"

// Zip writes files (name -> CSV lines) into a GTFS bundle. Tables missing
// from files get a header-only default so parsing can proceed.
func Zip(t testing.TB, files map[string][]string) []byte {
	t.Helper()
	defaults := map[string][]string{
		"agency.txt":     {"agency_id,agency_name,agency_url,agency_timezone", "TRI,Test Transit,http://example.com," + Timezone},
		"routes.txt":     {"route_id"},
		"stops.txt":      {"stop_id"},
		"trips.txt":      {"route_id,service_id,trip_id"},
		"stop_times.txt": {"trip_id,arrival_time,departure_time,stop_id,stop_sequence"},
	}
	for name, lines := range defaults {
		if _, ok := files[name]; !ok {
			files[name] = lines
		}
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for _, name := range names {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(files[name], "\n") + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// HubFiles is a small network around stop PSU_HUB:
//
//	T1 (route R1, weekdays)  DOWNTOWN 09:50 -> PSU_HUB 10:00 -> EAST_ANNEX 10:10
//	T2 (route R1, weekdays)  DOWNTOWN 10:20 -> PSU_HUB 10:30 -> EAST_ANNEX 10:40
//	N1 (route R2, every day) PSU_HUB 24:30 -> EAST_ANNEX 24:45
//
// Service runs through 2030; 2024-07-04 is removed from the weekday service.
func HubFiles() map[string][]string {
	return map[string][]string{
		"routes.txt": {
			"route_id,agency_id,route_short_name,route_long_name,route_type,route_color",
			"R1,TRI,1,Hub Line,3,FF0000",
			"R2,TRI,N,Night Owl,3,000080",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"PSU_HUB,PSU Transit Center,45.5112,-122.6834",
			"EAST_ANNEX,East Hub Annex,45.5150,-122.6600",
			"DOWNTOWN,Downtown,45.5190,-122.6790",
		},
		"trips.txt": {
			"route_id,service_id,trip_id,trip_headsign,direction_id",
			"R1,WEEKDAY,T1,East Annex,0",
			"R1,WEEKDAY,T2,East Annex,0",
			"R2,DAILY,N1,East Annex,0",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"T1,09:50:00,09:50:00,DOWNTOWN,1",
			"T1,10:00:00,10:00:00,PSU_HUB,2",
			"T1,10:10:00,10:10:00,EAST_ANNEX,3",
			"T2,10:20:00,10:20:00,DOWNTOWN,1",
			"T2,10:30:00,10:30:00,PSU_HUB,2",
			"T2,10:40:00,10:40:00,EAST_ANNEX,3",
			"N1,24:30:00,24:30:00,PSU_HUB,1",
			"N1,24:45:00,24:45:00,EAST_ANNEX,2",
		},
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"WEEKDAY,1,1,1,1,1,0,0,20240101,20301231",
			"DAILY,1,1,1,1,1,1,1,20240101,20301231",
		},
		"calendar_dates.txt": {
			"service_id,date,exception_type",
			"WEEKDAY,20240704,2",
		},
	}
}

// HubZip is HubFiles packed into a bundle.
func HubZip(t testing.TB) []byte {
	t.Helper()
	return Zip(t, HubFiles())
}
