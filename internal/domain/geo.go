package domain

import (
	"math"
	"sort"
)

// Coordinate is a latitude/longitude pair in decimal degrees. The zero value
// is the absent coordinate.
type Coordinate struct {
	Lat   float64 `json:"latitude"`
	Lon   float64 `json:"longitude"`
	Valid bool    `json:"-"`
}

// Point returns a present coordinate.
func Point(lat, lon float64) Coordinate {
	return Coordinate{Lat: lat, Lon: lon, Valid: true}
}

// ResolveCoordinate derives a single representative coordinate from a
// record's start/end measurements. Each axis is the mean of its endpoints
// when both are present, the single endpoint when only one is, and absent
// otherwise. The coordinate is absent when either axis is.
func ResolveCoordinate(rec CatalogRecord) Coordinate {
	lat := resolveAxis(rec.StartLat, rec.EndLat)
	lon := resolveAxis(rec.StartLon, rec.EndLon)
	if !lat.Valid || !lon.Valid {
		return Coordinate{}
	}
	return Point(lat.Value, lon.Value)
}

func resolveAxis(start, end Measure) Measure {
	switch {
	case start.Valid && end.Valid:
		return Some((start.Value + end.Value) / 2.0)
	case start.Valid:
		return start
	case end.Valid:
		return end
	default:
		return Measure{}
	}
}

// Distance is the Euclidean distance in degree space between two
// coordinates. It is +Inf when either is absent.
func Distance(a, b Coordinate) float64 {
	if !a.Valid || !b.Valid {
		return math.Inf(1)
	}
	return math.Hypot(b.Lat-a.Lat, b.Lon-a.Lon)
}

// RankByProximity orders record IDs by ascending distance from point. The
// sort is stable, so equal distances (including the +Inf of records without
// a coordinate) keep catalog order.
func RankByProximity(point Coordinate, records []CatalogRecord) []string {
	dist := make([]float64, len(records))
	for i := range records {
		dist[i] = Distance(point, ResolveCoordinate(records[i]))
	}
	return rankByScore(records, dist)
}

// rankByScore returns record IDs sorted stably by ascending score.
func rankByScore[S float64 | int](records []CatalogRecord, score []S) []string {
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return score[idx[a]] < score[idx[b]]
	})

	keys := make([]string, len(idx))
	for i, j := range idx {
		keys[i] = records[j].ID
	}
	return keys
}
