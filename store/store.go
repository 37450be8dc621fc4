// Package store holds the current static and realtime snapshots.
//
// Both references are swapped atomically. Readers capture a View once per
// request and work on that pair, so a concurrent refresh never produces a
// torn read and never blocks a query.
package store

import (
	"sync/atomic"

	"github.com/theoremus-urban-solutions/transitcore/errs"
	"github.com/theoremus-urban-solutions/transitcore/gtfs"
)

type Store struct {
	static   atomic.Pointer[gtfs.Schedule]
	realtime atomic.Pointer[Realtime]
}

func New() *Store { return &Store{} }

// CurrentStatic returns the published schedule, nil before the first load.
func (s *Store) CurrentStatic() *gtfs.Schedule { return s.static.Load() }

// CurrentRealtime returns the published realtime snapshot, nil before the first poll.
func (s *Store) CurrentRealtime() *Realtime { return s.realtime.Load() }

// PublishStatic replaces the schedule. The snapshot must be fully built.
func (s *Store) PublishStatic(snap *gtfs.Schedule) error {
	if snap == nil {
		return errs.Ef(errs.InvalidArgument, "store.PublishStatic", "nil schedule")
	}
	s.static.Store(snap)
	return nil
}

// PublishRealtime replaces the realtime snapshot. The snapshot must be fully built.
func (s *Store) PublishRealtime(snap *Realtime) error {
	if snap == nil {
		return errs.Ef(errs.InvalidArgument, "store.PublishRealtime", "nil realtime snapshot")
	}
	s.realtime.Store(snap)
	return nil
}

// View is a consistent pair of snapshots. Either side may be nil.
type View struct {
	Static   *gtfs.Schedule
	Realtime *Realtime
}

// View captures both current snapshots.
func (s *Store) View() View {
	return View{Static: s.static.Load(), Realtime: s.realtime.Load()}
}
