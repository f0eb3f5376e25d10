package domain

import "github.com/agext/levenshtein"

// FieldSelector picks the text a record is ranked on.
type FieldSelector func(CatalogRecord) string

// ByName selects the display name.
func ByName(rec CatalogRecord) string { return rec.Name }

// RankByText orders record IDs by ascending edit distance between query and
// the selected field, with unit cost for insert, delete and substitute. The
// comparison is case-sensitive and rune-wise with no normalization, so an
// exact match scores 0. Ties keep catalog order.
func RankByText(query string, records []CatalogRecord, field FieldSelector) []string {
	dist := make([]int, len(records))
	for i := range records {
		dist[i] = levenshtein.Distance(query, field(records[i]), nil)
	}
	return rankByScore(records, dist)
}
