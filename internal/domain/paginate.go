package domain

// Paginate returns keys[start:stop] with half-open, 0-indexed semantics.
// Bounds are clamped to the sequence; an empty or inverted window yields an
// empty, non-nil slice. The result shares no capacity with keys, so appending
// to it never clobbers the caller's sequence.
func Paginate[T any](keys []T, start, stop int) []T {
	if start < 0 {
		start = 0
	}
	if stop > len(keys) {
		stop = len(keys)
	}
	if start >= stop {
		return []T{}
	}
	return keys[start:stop:stop]
}
