package service

import (
	"context"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/querycache"
)

// Cached operation tags.
const (
	OpSearchByZip      = "search_beach_by_zip"
	OpSearchByLocation = "search_beach_by_location"
	OpSearchByName     = "search_beach_by_name"
)

// Window is a half-open page window [Start, Stop) over ranked results.
type Window struct {
	Start int
	Stop  int
}

// clamp bounds the window to [0, MaxSearchResults] in width. An inverted
// window is left for Paginate to turn into an empty page.
func (s *Service) clamp(w Window) Window {
	if w.Start < 0 {
		w.Start = 0
	}
	if w.Stop <= w.Start {
		return w
	}
	if w.Stop-w.Start > s.maxResults {
		w.Stop = w.Start + s.maxResults
	}
	return w
}

// SearchByLocation ranks beaches by distance from (lat, lon) and returns the
// requested page with current weather.
func (s *Service) SearchByLocation(ctx context.Context, lat, lon float64, w Window) (domain.SearchResult, error) {
	point, err := NormalizePoint(lat, lon)
	if err != nil {
		return domain.SearchResult{}, err
	}
	w = s.clamp(w)

	q := querycache.NewQuery(OpSearchByLocation,
		querycache.Float("latitude", point.Lat),
		querycache.Float("longitude", point.Lon),
		querycache.Int("start", w.Start),
		querycache.Int("stop", w.Stop),
	)
	return querycache.Remember(ctx, s.cache, q, func(ctx context.Context) (domain.SearchResult, error) {
		return s.rankedPage(ctx, domain.RankByProximity(point, s.catalog.Records()), w)
	})
}

// SearchByZip ranks beaches by distance from a postal code's centroid.
func (s *Service) SearchByZip(ctx context.Context, zip string, w Window) (domain.SearchResult, error) {
	zip, err := NormalizeZip(zip)
	if err != nil {
		return domain.SearchResult{}, err
	}
	w = s.clamp(w)

	q := querycache.NewQuery(OpSearchByZip,
		querycache.String("zip_code", zip),
		querycache.Int("start", w.Start),
		querycache.Int("stop", w.Stop),
	)
	return querycache.Remember(ctx, s.cache, q, func(ctx context.Context) (domain.SearchResult, error) {
		point, err := s.zips.LocateZip(ctx, zip, "US")
		if err != nil {
			return domain.SearchResult{}, err
		}
		return s.rankedPage(ctx, domain.RankByProximity(point, s.catalog.Records()), w)
	})
}

// SearchByName ranks beaches by edit distance between name and their display
// name. Matching is case-sensitive.
func (s *Service) SearchByName(ctx context.Context, name string, w Window) (domain.SearchResult, error) {
	if name == "" {
		return domain.SearchResult{}, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeMalformedRequest,
			"A search query is required")
	}
	w = s.clamp(w)

	q := querycache.NewQuery(OpSearchByName,
		querycache.String("query", name),
		querycache.Int("start", w.Start),
		querycache.Int("stop", w.Stop),
	)
	return querycache.Remember(ctx, s.cache, q, func(ctx context.Context) (domain.SearchResult, error) {
		return s.rankedPage(ctx, domain.RankByText(name, s.catalog.Records(), domain.ByName), w)
	})
}

func (s *Service) rankedPage(ctx context.Context, ranked []string, w Window) (domain.SearchResult, error) {
	page := domain.Paginate(ranked, w.Start, w.Stop)
	result, err := s.enrich(ctx, page)
	if err != nil {
		return domain.SearchResult{}, err
	}
	return domain.SearchResult{Order: page, Result: result}, nil
}
