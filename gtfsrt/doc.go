// Package gtfsrt handles fetching and decoding GTFS-Realtime protobuf feeds.
//
// It supports three feed types:
//   - Vehicle Positions: current vehicle locations
//   - Trip Updates: real-time arrival/departure predictions
//   - Service Alerts: disruptions and service changes
//
// Decoded values are plain structs with no protobuf types, ready to be
// bundled into an immutable realtime snapshot. Client also downloads the
// static bundle, so both loaders share one HTTP path.
package gtfsrt
