package gtfs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/theoremus-urban-solutions/transitcore/errs"
)

const maxReportedViolations = 20

// Validate checks referential integrity: every stop time resolves its stop
// and trip, every trip its route and service, and stop sequences are strictly
// increasing per trip. Any violation rejects the whole snapshot.
func Validate(s *Schedule) error {
	var violations []error
	add := func(format string, args ...any) {
		violations = append(violations, fmt.Errorf(format, args...))
	}

	orphanIDs := make([]string, 0, len(s.orphans))
	for id := range s.orphans {
		orphanIDs = append(orphanIDs, id)
	}
	sort.Strings(orphanIDs)
	for _, id := range orphanIDs {
		add("%d stop times reference unknown trip %q", s.orphans[id], id)
	}

	tripIDs := make([]string, 0, len(s.Trips))
	for id := range s.Trips {
		tripIDs = append(tripIDs, id)
	}
	sort.Strings(tripIDs)
	for _, id := range tripIDs {
		t := s.Trips[id]
		if _, ok := s.Routes[t.RouteID]; !ok {
			add("trip %q references unknown route %q", id, t.RouteID)
		}
		if _, ok := s.Services[t.ServiceID]; !ok {
			add("trip %q references unknown service %q", id, t.ServiceID)
		}
		for i, st := range t.StopTimes {
			if _, ok := s.Stops[st.StopID]; !ok {
				add("trip %q sequence %d references unknown stop %q", id, st.Sequence, st.StopID)
			}
			if i > 0 && st.Sequence <= t.StopTimes[i-1].Sequence {
				add("trip %q repeats stop_sequence %d", id, st.Sequence)
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}
	total := len(violations)
	if total > maxReportedViolations {
		violations = violations[:maxReportedViolations]
	}
	return errs.E(errs.ParseFailed, "gtfs.Validate",
		fmt.Errorf("%d integrity violations: %w", total, errors.Join(violations...)))
}
