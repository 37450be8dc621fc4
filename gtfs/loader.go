package gtfs

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theoremus-urban-solutions/transitcore/errs"
	"github.com/theoremus-urban-solutions/transitcore/utils"
)

var requiredFiles = []string{"routes.txt", "stops.txt", "trips.txt", "stop_times.txt"}

// Parse decodes a GTFS zip bundle into a Schedule. The result still has to
// pass Validate before it may be published.
func Parse(data []byte, source string, fetchedAt time.Time) (*Schedule, error) {
	const op = "gtfs.Parse"
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errs.E(errs.ParseFailed, op, err)
	}
	sum := sha256.Sum256(data)
	b := newBuilder()
	seen := map[string]bool{}
	for _, f := range zr.File {
		// Some producers nest the tables in a top-level folder.
		name := strings.ToLower(f.Name)
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		if _, ok := b.consumers()[name]; !ok {
			continue
		}
		if err := b.consumeCSV(f, name); err != nil {
			return nil, errs.E(errs.ParseFailed, op, fmt.Errorf("%s: %w", name, err))
		}
		seen[name] = true
	}
	for _, name := range requiredFiles {
		if !seen[name] {
			return nil, errs.Ef(errs.ParseFailed, op, "missing %s", name)
		}
	}
	s := b.finish()
	s.ID = uuid.NewString()
	s.FetchedAt = fetchedAt
	s.Source = source
	s.SHA256 = hex.EncodeToString(sum[:])
	if len(s.Routes) == 0 {
		return nil, errs.Ef(errs.EmptySnapshotRejected, op, "bundle from %s contains no routes", source)
	}
	return s, nil
}

type builder struct {
	agency    Agency
	hasAgency bool
	routes    map[string]*Route
	stops     map[string]*Stop
	trips     map[string]*Trip
	services  map[string]*ServiceCalendar
	stopTimes map[string][]StopTime
}

func newBuilder() *builder {
	return &builder{
		routes:    map[string]*Route{},
		stops:     map[string]*Stop{},
		trips:     map[string]*Trip{},
		services:  map[string]*ServiceCalendar{},
		stopTimes: map[string][]StopTime{},
	}
}

type rowFunc func(col func(string) string) error

func (b *builder) consumers() map[string]rowFunc {
	return map[string]rowFunc{
		"agency.txt":         b.agencyRow,
		"routes.txt":         b.routeRow,
		"stops.txt":          b.stopRow,
		"trips.txt":          b.tripRow,
		"stop_times.txt":     b.stopTimeRow,
		"calendar.txt":       b.calendarRow,
		"calendar_dates.txt": b.calendarDateRow,
	}
}

func (b *builder) consumeCSV(f *zip.File, name string) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1
	csvr.LazyQuotes = true
	csvr.ReuseRecord = true
	head, err := csvr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	index := make(map[string]int, len(head))
	for i, h := range head {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var row []string
	col := func(c string) string {
		if i, ok := index[c]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	consume := b.consumers()[name]
	for line := 2; ; line++ {
		row, err = csvr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := consume(col); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

func (b *builder) agencyRow(col func(string) string) error {
	if b.hasAgency {
		return nil
	}
	b.agency = Agency{ID: col("agency_id"), Name: col("agency_name"), Timezone: col("agency_timezone")}
	b.hasAgency = true
	return nil
}

func (b *builder) routeRow(col func(string) string) error {
	id := col("route_id")
	if id == "" {
		return errors.New("route without route_id")
	}
	typ, err := atoiDefault(col("route_type"), 3)
	if err != nil {
		return fmt.Errorf("route %s: route_type: %w", id, err)
	}
	b.routes[id] = &Route{
		ID:        id,
		AgencyID:  col("agency_id"),
		ShortName: col("route_short_name"),
		LongName:  col("route_long_name"),
		Type:      typ,
		Color:     col("route_color"),
		TextColor: col("route_text_color"),
	}
	return nil
}

func (b *builder) stopRow(col func(string) string) error {
	id := col("stop_id")
	if id == "" {
		return errors.New("stop without stop_id")
	}
	lat, _ := strconv.ParseFloat(col("stop_lat"), 64)
	lon, _ := strconv.ParseFloat(col("stop_lon"), 64)
	lt, _ := atoiDefault(col("location_type"), 0)
	b.stops[id] = &Stop{
		ID:            id,
		Code:          col("stop_code"),
		Name:          col("stop_name"),
		Desc:          col("stop_desc"),
		Lat:           lat,
		Lon:           lon,
		LocationType:  lt,
		ParentStation: col("parent_station"),
	}
	return nil
}

func (b *builder) tripRow(col func(string) string) error {
	id := col("trip_id")
	if id == "" {
		return errors.New("trip without trip_id")
	}
	b.trips[id] = &Trip{
		ID:          id,
		RouteID:     col("route_id"),
		ServiceID:   col("service_id"),
		Headsign:    col("trip_headsign"),
		DirectionID: col("direction_id"),
		ShapeID:     col("shape_id"),
		BlockID:     col("block_id"),
	}
	return nil
}

func (b *builder) stopTimeRow(col func(string) string) error {
	tripID := col("trip_id")
	if tripID == "" {
		return errors.New("stop time without trip_id")
	}
	seq, err := strconv.Atoi(col("stop_sequence"))
	if err != nil {
		return fmt.Errorf("trip %s: stop_sequence: %w", tripID, err)
	}
	st := StopTime{StopID: col("stop_id"), Sequence: seq}
	arr, dep := col("arrival_time"), col("departure_time")
	if arr == "" {
		arr = dep
	}
	if dep == "" {
		dep = arr
	}
	if arr != "" {
		if st.Arrival, err = utils.ParseGTFSTime(arr); err != nil {
			return fmt.Errorf("trip %s: %w", tripID, err)
		}
		if st.Departure, err = utils.ParseGTFSTime(dep); err != nil {
			return fmt.Errorf("trip %s: %w", tripID, err)
		}
		st.HasTime = true
	}
	st.PickupType, _ = atoiDefault(col("pickup_type"), 0)
	st.DropOffType, _ = atoiDefault(col("drop_off_type"), 0)
	b.stopTimes[tripID] = append(b.stopTimes[tripID], st)
	return nil
}

var weekdayColumns = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func (b *builder) calendarRow(col func(string) string) error {
	id := col("service_id")
	if id == "" {
		return errors.New("calendar row without service_id")
	}
	cal := b.service(id)
	for i, day := range weekdayColumns {
		cal.Weekdays[i] = col(day) == "1"
	}
	var err error
	if cal.Start, err = utils.ParseDate(col("start_date")); err != nil {
		return fmt.Errorf("service %s: %w", id, err)
	}
	if cal.End, err = utils.ParseDate(col("end_date")); err != nil {
		return fmt.Errorf("service %s: %w", id, err)
	}
	return nil
}

func (b *builder) calendarDateRow(col func(string) string) error {
	id := col("service_id")
	if id == "" {
		return errors.New("calendar date without service_id")
	}
	d, err := utils.ParseDate(col("date"))
	if err != nil {
		return fmt.Errorf("service %s: %w", id, err)
	}
	cal := b.service(id)
	switch col("exception_type") {
	case "1":
		cal.Added[d] = struct{}{}
		delete(cal.Removed, d)
	case "2":
		cal.Removed[d] = struct{}{}
		delete(cal.Added, d)
	default:
		return fmt.Errorf("service %s: unknown exception_type %q", id, col("exception_type"))
	}
	return nil
}

func (b *builder) service(id string) *ServiceCalendar {
	cal, ok := b.services[id]
	if !ok {
		cal = newServiceCalendar(id)
		b.services[id] = cal
	}
	return cal
}

// finish attaches stop times to their trips and builds the derived indexes.
func (b *builder) finish() *Schedule {
	s := &Schedule{
		Agency:     b.agency,
		Routes:     b.routes,
		Stops:      b.stops,
		Trips:      b.trips,
		Services:   b.services,
		stopVisits: map[string][]StopVisit{},
		routeTrips: map[string][]string{},
		orphans:    map[string]int{},
	}
	for tripID, sts := range b.stopTimes {
		trip, ok := b.trips[tripID]
		if !ok {
			s.orphans[tripID] = len(sts)
			continue
		}
		sort.SliceStable(sts, func(i, j int) bool { return sts[i].Sequence < sts[j].Sequence })
		trip.StopTimes = sts
	}
	for _, trip := range b.trips {
		s.routeTrips[trip.RouteID] = append(s.routeTrips[trip.RouteID], trip.ID)
		for i, st := range trip.StopTimes {
			s.stopVisits[st.StopID] = append(s.stopVisits[st.StopID], StopVisit{TripID: trip.ID, Index: i})
		}
	}
	for _, ids := range s.routeTrips {
		sort.Strings(ids)
	}
	for _, visits := range s.stopVisits {
		sort.Slice(visits, func(i, j int) bool {
			if visits[i].TripID != visits[j].TripID {
				return visits[i].TripID < visits[j].TripID
			}
			return visits[i].Index < visits[j].Index
		})
	}
	return s
}

func atoiDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def, err
	}
	return v, nil
}
