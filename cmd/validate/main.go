// Command validate checks the integrity of the data files the query service
// reads at runtime: the beach catalog and, optionally, a persisted query
// cache document. It reports per-phase pass/fail and exits non-zero on any
// failure.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -catalog data/beach_attributes.json \
//	  -cache data/search_cache.json \
//	  -capacity 20
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/couchcryptid/beach-query-service/internal/adapter/catalog"
	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/querycache"
	"github.com/couchcryptid/beach-query-service/internal/service"
)

// maxSpanDegrees flags records whose start and end points are implausibly far apart.
const maxSpanDegrees = 1.0

var knownOperations = []string{service.OpSearchByZip, service.OpSearchByLocation, service.OpSearchByName}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	catalogPath := flag.String("catalog", "", "path to the beach catalog JSON document")
	cachePath := flag.String("cache", "", "optional path to a persisted query cache document")
	capacity := flag.Int("capacity", 20, "configured query cache capacity")
	flag.Parse()

	if *catalogPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(os.Stdout, *catalogPath, *cachePath, *capacity); code != 0 {
		os.Exit(code)
	}
}

func run(out io.Writer, catalogPath, cachePath string, capacity int) int {
	fmt.Fprintln(out, "=== Beach Data Integrity Validation ===")
	fmt.Fprintln(out)

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load catalog: %v\n", err)
		return 1
	}
	records := cat.Records()

	phases := []*phase{
		validateAttributes(records),
		validateCoordinates(records),
	}

	entries := 0
	if cachePath != "" {
		data, err := os.ReadFile(cachePath)
		if err != nil {
			fmt.Fprintf(out, "FATAL: read cache document: %v\n", err)
			return 1
		}
		doc, repaired := querycache.ParseOrDefault(data)
		entries = len(doc)
		phases = append(phases, validateCache(doc, repaired, capacity))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	located := 0
	for _, rec := range records {
		if domain.ResolveCoordinate(rec).Valid {
			located++
		}
	}
	fmt.Fprintf(out, "Records: %d beaches, %d with a resolvable location, %d cache entries\n",
		len(records), located, entries)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// validateAttributes checks that every record can be displayed.
func validateAttributes(records []domain.CatalogRecord) *phase {
	p := &phase{name: "Catalog attributes"}
	if len(records) == 0 {
		p.errorf("catalog has no records")
	}
	for _, rec := range records {
		if rec.Name == "" {
			p.errorf("%s: BEACH_NAME is empty", rec.ID)
		}
		if rec.State == "" {
			p.errorf("%s: BEACH_STATE is empty", rec.ID)
		}
		if rec.Length.Valid && rec.Length.Value < 0 {
			p.errorf("%s: negative beach length %g", rec.ID, rec.Length.Value)
		}
	}
	return p
}

// validateCoordinates checks measurement ranges and start/end consistency.
// Records without any location are allowed; they rank last.
func validateCoordinates(records []domain.CatalogRecord) *phase {
	p := &phase{name: "Catalog coordinates"}
	for _, rec := range records {
		checkRange(p, rec.ID, "START_LATITUDE_MEASURE", rec.StartLat, 90)
		checkRange(p, rec.ID, "END_LATITUDE_MEASURE", rec.EndLat, 90)
		checkRange(p, rec.ID, "START_LONGITUDE_MEASURE", rec.StartLon, 180)
		checkRange(p, rec.ID, "END_LONGITUDE_MEASURE", rec.EndLon, 180)

		if rec.StartLat.Valid && rec.EndLat.Valid && math.Abs(rec.StartLat.Value-rec.EndLat.Value) > maxSpanDegrees {
			p.errorf("%s: latitude span %.3f exceeds %.1f degrees", rec.ID, math.Abs(rec.StartLat.Value-rec.EndLat.Value), maxSpanDegrees)
		}
		if rec.StartLon.Valid && rec.EndLon.Valid && math.Abs(rec.StartLon.Value-rec.EndLon.Value) > maxSpanDegrees {
			p.errorf("%s: longitude span %.3f exceeds %.1f degrees", rec.ID, math.Abs(rec.StartLon.Value-rec.EndLon.Value), maxSpanDegrees)
		}
	}
	return p
}

func checkRange(p *phase, id, field string, m domain.Measure, limit float64) {
	if m.Valid && (m.Value < -limit || m.Value > limit) {
		p.errorf("%s: %s %g outside [-%g, %g]", id, field, m.Value, limit, limit)
	}
}

// validateCache checks a persisted cache document against the invariants the
// cache maintains after every insert.
func validateCache(doc querycache.Document, repaired bool, capacity int) *phase {
	p := &phase{name: "Query cache document"}
	if repaired {
		p.errorf("document is corrupt; the service will reset it on next access")
	}
	if len(doc) > capacity {
		p.errorf("%d entries exceed capacity %d", len(doc), capacity)
	}
	for key, e := range doc {
		if e.Key != key {
			p.errorf("%s: entry key %q does not match its slot", key, e.Key)
		}
		if e.LastAccessed.IsZero() {
			p.errorf("%s: last_accessed is missing", key)
		}
		if !slices.Contains(knownOperations, e.Operation) {
			p.errorf("%s: unknown operation %q", key, e.Operation)
		}
		if len(e.Result) == 0 {
			p.errorf("%s: result is empty", key)
		}
	}
	return p
}
