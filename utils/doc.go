// Package utils provides shared helpers for GTFS clock values and calendar dates.
//
// It contains:
//   - GTFS HH:MM:SS parsing (hours may exceed 24)
//   - A civil Date type keyed by YYYYMMDD
//   - The service-day anchor used to turn stop-time offsets into instants
package utils
