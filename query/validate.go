package query

import (
	"strings"

	"github.com/theoremus-urban-solutions/transitcore/errs"
	"github.com/theoremus-urban-solutions/transitcore/gtfs"
)

const (
	DefaultHorizonMinutes = 60
	MaxHorizonMinutes     = 24 * 60
)

// resolveRoute accepts a route_id, or a route short name naming exactly one
// route. Without a schedule the reference is returned unchecked.
func resolveRoute(sched *gtfs.Schedule, ref string) (string, error) {
	const op = "query.resolveRoute"
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errs.Ef(errs.InvalidArgument, op, "route id must not be blank")
	}
	if sched == nil {
		return ref, nil
	}
	if _, ok := sched.Route(ref); ok {
		return ref, nil
	}
	match := ""
	for id, r := range sched.Routes {
		if r.ShortName == "" || !strings.EqualFold(r.ShortName, ref) {
			continue
		}
		if match != "" {
			return "", errs.Ef(errs.InvalidArgument, op, "route short name %q is ambiguous", ref)
		}
		match = id
	}
	if match == "" {
		return "", errs.Ef(errs.NotFound, op, "no such route: %s", ref)
	}
	return match, nil
}

func ensureStopExists(sched *gtfs.Schedule, stopID string) (*gtfs.Stop, error) {
	const op = "query.ensureStopExists"
	stopID = strings.TrimSpace(stopID)
	if stopID == "" {
		return nil, errs.Ef(errs.InvalidArgument, op, "stop id must not be blank")
	}
	s, ok := sched.Stop(stopID)
	if !ok {
		return nil, errs.Ef(errs.NotFound, op, "no such stop: %s", stopID)
	}
	return s, nil
}

func checkHorizon(minutes int) error {
	if minutes < 1 || minutes > MaxHorizonMinutes {
		return errs.Ef(errs.InvalidArgument, "query.checkHorizon",
			"horizon_minutes must be between 1 and %d, got %d", MaxHorizonMinutes, minutes)
	}
	return nil
}
