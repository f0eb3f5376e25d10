// Package domain models the coastal site catalog and the pure query core:
// ranking, pagination, and time-interval matching over forecast periods and
// weather advisories.
//
// # Data Source
//
// The catalog is the EPA BEACON beach attribute export, one record per beach
// keyed by a state-prefixed identifier ("VA123456"). It is loaded once per
// process and treated as immutable. Every function here is read-only over
// its inputs and safe to call concurrently.
//
// # Coordinate Conventions
//
// Each record carries START_/END_LATITUDE_MEASURE and START_/END_LONGITUDE_MEASURE.
// Either endpoint may be missing, empty, or unparseable:
//
//	both present   →  mean of the two
//	one present    →  that value
//	none present   →  absent
//
// A record whose latitude or longitude is absent has no coordinate. It ranks
// last (distance +Inf) and renders both axes as "" in responses.
//
// Distances are Euclidean in degree space, not geodesic. Ranking only needs
// a monotone proximity score over a small neighborhood, and the degree metric
// matches the ordering clients have always seen.
//
// # Intervals
//
// Forecast periods are half-open, [start, end): an instant on the boundary
// between two periods belongs to the later one. Advisories are closed,
// [onset, ends]: an advisory ending at 12:00 still applies at 12:00.
//
// # Empty Marker
//
// Absent measures serialize as the empty string, never null. See [Measure].
package domain
