package querycache

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Entry is one memoized query result.
type Entry struct {
	Key          string          `json:"key"`
	Operation    string          `json:"operation"`
	Params       map[string]any  `json:"params"`
	Result       json.RawMessage `json:"result"`
	LastAccessed time.Time       `json:"last_accessed"`
}

// Document is the persisted cache store: cache key to entry.
type Document map[string]*Entry

// ParseOrDefault decodes a persisted document. Empty input is a fresh store.
// Anything that does not decode to a mapping of entries yields an empty
// document and repaired=true, telling the caller to persist the reset.
func ParseOrDefault(raw []byte) (doc Document, repaired bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Document{}, false
	}

	var decoded map[string]*Entry
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return Document{}, true
	}

	doc = make(Document, len(decoded))
	for k, e := range decoded {
		if e == nil {
			repaired = true
			continue
		}
		if e.Key == "" {
			e.Key = k
		}
		doc[k] = e
	}
	return doc, repaired
}

// touch stamps key as the most recently accessed entry. When the clock has
// not moved past another entry's stamp, the stamp is advanced by a
// nanosecond beyond it so ties never rank key as older.
func (d Document) touch(key string, now time.Time) {
	e, ok := d[key]
	if !ok {
		return
	}
	stamp := now
	for k, other := range d {
		if k != key && !stamp.After(other.LastAccessed) {
			stamp = other.LastAccessed.Add(time.Nanosecond)
		}
	}
	e.LastAccessed = stamp
}

// evict removes all but the capacity most recently accessed entries and
// returns the number removed. Equal timestamps are ordered by key.
func (d Document) evict(capacity int) int {
	overflow := len(d) - capacity
	if overflow <= 0 {
		return 0
	}

	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := d[keys[i]].LastAccessed, d[keys[j]].LastAccessed
		if a.Equal(b) {
			return keys[i] < keys[j]
		}
		return a.Before(b)
	})

	for _, k := range keys[:overflow] {
		delete(d, k)
	}
	return overflow
}
