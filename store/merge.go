package store

import (
	"time"

	"github.com/theoremus-urban-solutions/transitcore/gtfs"
	"github.com/theoremus-urban-solutions/transitcore/gtfsrt"
	"github.com/theoremus-urban-solutions/transitcore/utils"
)

// Source tells where an effective time came from.
type Source string

const (
	SourceRealtime  Source = "realtime"
	SourceScheduled Source = "scheduled"
)

// Visit identifies one stop time of one trip on one service day.
type Visit struct {
	Trip       *gtfs.Trip
	Index      int
	ServiceDay utils.Date
}

// MergeOptions parameterise EffectiveArrival.
type MergeOptions struct {
	Location  *time.Location
	Now       time.Time
	Staleness time.Duration // zero disables the age check
}

// Arrival is the merged estimate for a visit.
type Arrival struct {
	Scheduled    time.Time
	Effective    time.Time
	DelaySeconds *int // set only for realtime estimates
	Source       Source
	Skipped      bool
	Canceled     bool
	Stale        bool // realtime existed for the trip but was too old
	Known        bool // false when the stop time has no usable schedule
}

// EffectiveArrival merges the schedule of visit with the trip update in
// v.Realtime. A fresh prediction for the stop wins, matched by stop_id and
// then by stop_sequence; absolute times win over delays and arrivals over
// departures. Without a prediction for the stop, the delay of the nearest
// preceding predicted stop propagates, then the trip-level delay.
// Otherwise the scheduled time is returned.
func EffectiveArrival(v View, visit Visit, opts MergeOptions) Arrival {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	trip := visit.Trip
	offset, ok := trip.ScheduledArrival(visit.Index)
	if !ok {
		return Arrival{Source: SourceScheduled}
	}
	anchor := utils.ServiceDayAnchor(visit.ServiceDay, loc)
	sched := anchor.Add(time.Duration(offset) * time.Second)
	out := Arrival{Scheduled: sched, Effective: sched, Source: SourceScheduled, Known: true}

	rt := v.Realtime
	if rt == nil {
		return out
	}
	tu := rt.TripUpdate(trip.ID, visit.ServiceDay)
	if tu == nil {
		return out
	}
	if tu.StartDate != "" && tu.StartDate != visit.ServiceDay.String() {
		return out
	}
	if opts.Staleness > 0 && opts.Now.Sub(observedAt(rt, tu)) > opts.Staleness {
		out.Stale = true
		return out
	}
	if tu.Canceled {
		out.Source = SourceRealtime
		out.Canceled = true
		return out
	}

	match, at := matchUpdate(trip, tu, visit.Index)
	switch {
	case match != nil && at == visit.Index:
		switch match.Relationship {
		case gtfsrt.RelSkipped:
			out.Source = SourceRealtime
			out.Skipped = true
			return out
		case gtfsrt.RelNoData:
			return out
		}
		if ev, _, ok := pick(match); ok {
			return applyEvent(out, ev)
		}
	case match != nil:
		if match.Relationship == gtfsrt.RelNoData {
			return out
		}
		if d, ok := delayAt(trip, match, at, anchor); ok {
			return withDelay(out, d)
		}
	}
	if tu.Delay != nil {
		return withDelay(out, int(*tu.Delay))
	}
	return out
}

// observedAt is when the prediction was made: the update's own timestamp,
// else the feed header time, else the last successful fetch of the feed.
// FetchedAt is only a last resort: snapshots carrying over a failed feed get
// a new FetchedAt on every poll.
func observedAt(rt *Realtime, tu *gtfsrt.TripUpdate) time.Time {
	if !tu.Timestamp.IsZero() {
		return tu.Timestamp
	}
	if st, ok := rt.Feeds[gtfsrt.FeedTripUpdates]; ok {
		if !st.HeaderTime.IsZero() {
			return st.HeaderTime
		}
		if !st.LastSuccess.IsZero() {
			return st.LastSuccess
		}
	}
	return rt.FetchedAt
}

// matchUpdate returns the update for stop time idx, or else the usable update
// closest before it, with the stop-time index it applies to.
func matchUpdate(trip *gtfs.Trip, tu *gtfsrt.TripUpdate, idx int) (*gtfsrt.StopTimeUpdate, int) {
	var (
		best   *gtfsrt.StopTimeUpdate
		bestAt = -1
	)
	for i := range tu.StopTimeUpdates {
		u := &tu.StopTimeUpdates[i]
		at := resolve(trip, u)
		if at < 0 || at > idx {
			continue
		}
		// Skipped stops do not carry a delay downstream.
		if u.Relationship == gtfsrt.RelSkipped && at < idx {
			continue
		}
		if u.Relationship == gtfsrt.RelScheduled {
			if _, _, ok := pick(u); !ok {
				continue
			}
		}
		if at > bestAt {
			best, bestAt = u, at
		}
	}
	return best, bestAt
}

// resolve maps an update to a stop-time index by stop_id, then by stop_sequence.
func resolve(trip *gtfs.Trip, u *gtfsrt.StopTimeUpdate) int {
	if u.StopID != "" {
		candidate := -1
		for i, st := range trip.StopTimes {
			if st.StopID != u.StopID {
				continue
			}
			// Loop trips visit a stop twice; the sequence disambiguates.
			if u.StopSequence == nil || st.Sequence == int(*u.StopSequence) {
				return i
			}
			if candidate < 0 {
				candidate = i
			}
		}
		if candidate >= 0 {
			return candidate
		}
	}
	if u.StopSequence != nil {
		for i, st := range trip.StopTimes {
			if st.Sequence == int(*u.StopSequence) {
				return i
			}
		}
	}
	return -1
}

// pick prefers the arrival prediction over the departure one.
func pick(u *gtfsrt.StopTimeUpdate) (ev gtfsrt.StopTimeEvent, departure bool, ok bool) {
	if u.Arrival.Known() {
		return u.Arrival, false, true
	}
	if u.Departure.Known() {
		return u.Departure, true, true
	}
	return gtfsrt.StopTimeEvent{}, false, false
}

func applyEvent(out Arrival, ev gtfsrt.StopTimeEvent) Arrival {
	if !ev.Time.IsZero() {
		out.Source = SourceRealtime
		out.Effective = ev.Time
		d := int(ev.Time.Sub(out.Scheduled) / time.Second)
		out.DelaySeconds = &d
		return out
	}
	return withDelay(out, int(*ev.Delay))
}

func withDelay(out Arrival, seconds int) Arrival {
	out.Source = SourceRealtime
	out.Effective = out.Scheduled.Add(time.Duration(seconds) * time.Second)
	out.DelaySeconds = &seconds
	return out
}

// delayAt derives the delay observed at stop time at from update u.
func delayAt(trip *gtfs.Trip, u *gtfsrt.StopTimeUpdate, at int, anchor time.Time) (int, bool) {
	ev, departure, ok := pick(u)
	if !ok {
		return 0, false
	}
	if ev.Time.IsZero() {
		return int(*ev.Delay), true
	}
	offset, ok := trip.ScheduledArrival(at)
	if !ok {
		if ev.Delay != nil {
			return int(*ev.Delay), true
		}
		return 0, false
	}
	if departure && trip.StopTimes[at].HasTime {
		offset = trip.StopTimes[at].Departure
	}
	sched := anchor.Add(time.Duration(offset) * time.Second)
	return int(ev.Time.Sub(sched) / time.Second), true
}
