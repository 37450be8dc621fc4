package store

import (
	"time"

	"github.com/theoremus-urban-solutions/transitcore/gtfsrt"
	"github.com/theoremus-urban-solutions/transitcore/utils"
)

// FeedStatus records the outcome of the latest attempt on one realtime feed.
type FeedStatus struct {
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	HeaderTime  time.Time `json:"header_time,omitempty"`
	Fresh       bool      `json:"fresh"` // latest attempt succeeded
	Error       string    `json:"error,omitempty"`
	Count       int       `json:"count"`
}

// Realtime is an immutable realtime snapshot. Data of a feed whose latest
// attempt failed is carried over from the previous snapshot.
type Realtime struct {
	ID          string
	FetchedAt   time.Time
	Vehicles    []gtfsrt.VehiclePosition // sorted by vehicle id
	TripUpdates map[string]*gtfsrt.TripUpdate // by gtfsrt.TripKey
	Alerts      []gtfsrt.Alert // sorted by id
	Feeds       map[gtfsrt.FeedKind]FeedStatus
}

// TripUpdate returns the update for the run of tripID on day: one carrying
// that start_date, else one without a start_date.
func (r *Realtime) TripUpdate(tripID string, day utils.Date) *gtfsrt.TripUpdate {
	if r == nil {
		return nil
	}
	if tu := r.TripUpdates[gtfsrt.TripKey(tripID, day.String())]; tu != nil {
		return tu
	}
	return r.TripUpdates[gtfsrt.TripKey(tripID, "")]
}

// Feed returns the status of kind; ok is false when the feed is not polled.
func (r *Realtime) Feed(kind gtfsrt.FeedKind) (FeedStatus, bool) {
	if r == nil {
		return FeedStatus{}, false
	}
	st, ok := r.Feeds[kind]
	return st, ok
}

// Freshness annotates results that depend on one realtime feed.
type Freshness struct {
	Feed        gtfsrt.FeedKind `json:"feed"`
	Available   bool            `json:"available"`
	Stale       bool            `json:"stale"`
	LastSuccess time.Time       `json:"last_success,omitempty"`
	AgeSeconds  int64           `json:"age_seconds,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Freshness reports whether kind has data and whether that data is older
// than staleness. A zero staleness disables the age check.
func (v View) Freshness(kind gtfsrt.FeedKind, now time.Time, staleness time.Duration) Freshness {
	f := Freshness{Feed: kind}
	st, ok := v.Realtime.Feed(kind)
	if !ok || st.LastSuccess.IsZero() {
		if ok {
			f.Error = st.Error
		}
		return f
	}
	f.Available = true
	f.LastSuccess = st.LastSuccess
	f.Error = st.Error
	observed := st.LastSuccess
	if !st.HeaderTime.IsZero() {
		observed = st.HeaderTime
	}
	age := now.Sub(observed)
	if age < 0 {
		age = 0
	}
	f.AgeSeconds = int64(age / time.Second)
	f.Stale = staleness > 0 && age > staleness
	return f
}
