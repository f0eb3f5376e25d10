// Package catalog loads the static beach catalog: a JSON object keyed by
// beach ID whose values carry the EPA BEACON attribute columns.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/couchcryptid/beach-query-service/internal/domain"
)

// Catalog is an immutable, ordered snapshot of catalog records. It is safe
// for concurrent reads.
type Catalog struct {
	records []domain.CatalogRecord
	index   map[string]int
}

// Load reads the catalog document at path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return c, nil
}

// Decode parses a catalog document. Records keep the document's key order,
// which is the tiebreak order for every ranking. A repeated ID keeps its
// first position and its last value.
func Decode(r io.Reader) (*Catalog, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	c := &Catalog{index: make(map[string]int)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read catalog key: %w", err)
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("catalog key is %T, want string", tok)
		}

		var attrs map[string]any
		if err := dec.Decode(&attrs); err != nil {
			return nil, fmt.Errorf("decode catalog record %q: %w", id, err)
		}

		rec := toRecord(id, attrs)
		if i, dup := c.index[id]; dup {
			c.records[i] = rec
			continue
		}
		c.index[id] = len(c.records)
		c.records = append(c.records, rec)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return c, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read catalog document: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.New("catalog document must be a JSON object keyed by beach ID")
	}
	return nil
}

func toRecord(id string, attrs map[string]any) domain.CatalogRecord {
	return domain.CatalogRecord{
		ID:       id,
		Name:     text(attrs["BEACH_NAME"]),
		County:   text(attrs["BEACH_COUNTY"]),
		State:    text(attrs["BEACH_STATE"]),
		Tribe:    text(attrs["BEACH_TRIBE_CODE"]),
		Length:   domain.MeasureOf(attrs["BEACH_LEN_IN_MI"]),
		Access:   text(attrs["BEACH_ACCESS"]),
		JoinKey:  text(attrs["SOURCE_JOINKEY"]),
		StartLat: domain.MeasureOf(attrs["START_LATITUDE_MEASURE"]),
		EndLat:   domain.MeasureOf(attrs["END_LATITUDE_MEASURE"]),
		StartLon: domain.MeasureOf(attrs["START_LONGITUDE_MEASURE"]),
		EndLon:   domain.MeasureOf(attrs["END_LONGITUDE_MEASURE"]),
	}
}

// text renders a scalar attribute; missing and null become "".
func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// Lookup returns the record for id.
func (c *Catalog) Lookup(id string) (domain.CatalogRecord, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.CatalogRecord{}, false
	}
	return c.records[i], true
}

// Records returns every record in catalog order. Callers must not modify the
// returned slice.
func (c *Catalog) Records() []domain.CatalogRecord {
	return c.records
}

// All returns the catalog as a map from ID to record.
func (c *Catalog) All() map[string]domain.CatalogRecord {
	m := make(map[string]domain.CatalogRecord, len(c.records))
	for _, r := range c.records {
		m[r.ID] = r
	}
	return m
}

// Len reports the number of records.
func (c *Catalog) Len() int {
	return len(c.records)
}
