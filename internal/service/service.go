// Package service implements every query operation over an explicitly
// constructed snapshot of the catalog, the upstream collaborators and the
// shared query cache.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/querycache"
	"github.com/jonboulle/clockwork"
)

// Catalog is the read-only catalog snapshot.
type Catalog interface {
	Lookup(id string) (domain.CatalogRecord, bool)
	Records() []domain.CatalogRecord
	Len() int
}

// WeatherProvider supplies forecast periods and normalized current conditions.
type WeatherProvider interface {
	Forecast(ctx context.Context, coord domain.Coordinate) ([]domain.ForecastPeriod, error)
	CurrentConditions(ctx context.Context, coord domain.Coordinate) (domain.Weather, error)
}

// AdvisoryProvider supplies active weather alerts by forecast zone.
type AdvisoryProvider interface {
	Zone(ctx context.Context, coord domain.Coordinate) (string, error)
	ActiveAdvisories(ctx context.Context, zoneID string) ([]domain.Advisory, error)
}

// UVProvider supplies the current UV index.
type UVProvider interface {
	UVIndex(ctx context.Context, coord domain.Coordinate) (domain.Measure, error)
}

// ZipLocator resolves postal codes to coordinates.
type ZipLocator interface {
	LocateZip(ctx context.Context, zip, countryCode string) (domain.Coordinate, error)
}

// Collaborators groups the service's external dependencies. UV is optional.
type Collaborators struct {
	Catalog    Catalog
	Weather    WeatherProvider
	Advisories AdvisoryProvider
	UV         UVProvider
	Zips       ZipLocator
	Cache      *querycache.Cache
}

// Options tunes the service.
type Options struct {
	// MaxSearchResults caps the width of a search page window.
	MaxSearchResults int
	// EnrichConcurrency bounds parallel weather lookups per page.
	EnrichConcurrency int
}

// Service answers beach queries.
type Service struct {
	catalog    Catalog
	weather    WeatherProvider
	advisories AdvisoryProvider
	uv         UVProvider
	zips       ZipLocator
	cache      *querycache.Cache

	maxResults  int
	concurrency int
	clock       clockwork.Clock
	logger      *slog.Logger
}

// New creates a service.
func New(c Collaborators, opts Options, clock clockwork.Clock, logger *slog.Logger) *Service {
	if opts.MaxSearchResults <= 0 {
		opts.MaxSearchResults = 500
	}
	if opts.EnrichConcurrency <= 0 {
		opts.EnrichConcurrency = 8
	}
	return &Service{
		catalog:     c.Catalog,
		weather:     c.Weather,
		advisories:  c.Advisories,
		uv:          c.UV,
		zips:        c.Zips,
		cache:       c.Cache,
		maxResults:  opts.MaxSearchResults,
		concurrency: opts.EnrichConcurrency,
		clock:       clock,
		logger:      logger.With("component", "beach-service"),
	}
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// CheckReadiness reports whether the catalog snapshot is usable.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.catalog == nil || s.catalog.Len() == 0 {
		return errors.New("beach catalog is empty")
	}
	return nil
}

func (s *Service) lookup(id string) (domain.CatalogRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.CatalogRecord{}, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeInvalidBeachID,
			"A beach ID is required")
	}
	rec, ok := s.catalog.Lookup(id)
	if !ok {
		return domain.CatalogRecord{}, domain.NewQueryError(domain.ErrNotFound, domain.ErrorTypeInvalidBeachID,
			"The requested beach ID could not be found")
	}
	return rec, nil
}

func (s *Service) coordinateOf(rec domain.CatalogRecord) (domain.Coordinate, error) {
	c := domain.ResolveCoordinate(rec)
	if !c.Valid {
		return domain.Coordinate{}, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeInvalidCoordinates,
			"Beach %s has no recorded location", rec.ID)
	}
	return c, nil
}

var zipPattern = regexp.MustCompile(`^([0-9]{5})(?:-[0-9]{4})?$`)

// NormalizeZip validates a US postal code. ZIP+4 codes reduce to their
// 5-digit prefix.
func NormalizeZip(zip string) (string, error) {
	m := zipPattern.FindStringSubmatch(strings.TrimSpace(zip))
	if m == nil {
		return "", domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeInvalidZipCode,
			"Zip code %q must be 5 digits", zip)
	}
	return m[1], nil
}

// NormalizePoint validates a query point and rounds it to 4 decimal places
// (about 11 m), so nearby requests share cache entries.
func NormalizePoint(lat, lon float64) (domain.Coordinate, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return domain.Coordinate{}, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeInvalidCoordinates,
			"Latitude must be within [-90, 90] and longitude within [-180, 180]")
	}
	return domain.Point(round4(lat), round4(lon)), nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
