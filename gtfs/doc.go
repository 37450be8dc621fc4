// Package gtfs parses static GTFS bundles into immutable Schedule snapshots.
//
// A bundle is read from zip bytes (agency, routes, stops, trips, stop_times,
// calendar and calendar_dates tables), normalised into typed tables keyed by
// id and checked by Validate before a loader may publish it.
package gtfs
