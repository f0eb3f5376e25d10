package service

import (
	"context"
	"errors"
	"strings"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// CurrentWeather returns normalized current conditions at coord, enriched
// with the UV index when a UV provider is configured. A failed UV lookup
// leaves the index absent.
func (s *Service) CurrentWeather(ctx context.Context, coord domain.Coordinate) (domain.Weather, error) {
	w, err := s.weather.CurrentConditions(ctx, coord)
	if err != nil {
		return domain.Weather{}, err
	}
	if s.uv == nil {
		return w, nil
	}

	uv, err := s.uv.UVIndex(ctx, coord)
	if err != nil {
		s.logger.Warn("uv index unavailable", "latitude", coord.Lat, "longitude", coord.Lon, "error", err)
		return w, nil
	}
	w.UVIndex = uv
	return w, nil
}

// CurrentWeatherByZip resolves a postal code and returns its current conditions.
func (s *Service) CurrentWeatherByZip(ctx context.Context, zip, countryCode string) (domain.Weather, error) {
	zip, err := NormalizeZip(zip)
	if err != nil {
		return domain.Weather{}, err
	}
	coord, err := s.zips.LocateZip(ctx, zip, countryCode)
	if err != nil {
		return domain.Weather{}, err
	}
	return s.CurrentWeather(ctx, coord)
}

// BeachInfo returns a beach's display attributes.
func (s *Service) BeachInfo(_ context.Context, id string) (domain.BeachInfo, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return domain.BeachInfo{}, err
	}
	return domain.NewBeachInfo(rec), nil
}

// BeachInfoWithWeather returns a beach's attributes and current weather.
// Any failure fetching the weather fails the request.
func (s *Service) BeachInfoWithWeather(ctx context.Context, id string) (domain.BeachInfo, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return domain.BeachInfo{}, err
	}
	coord, err := s.coordinateOf(rec)
	if err != nil {
		return domain.BeachInfo{}, err
	}
	w, err := s.CurrentWeather(ctx, coord)
	if err != nil {
		return domain.BeachInfo{}, err
	}

	info := domain.NewBeachInfo(rec)
	info.Weather = &w
	return info, nil
}

// BeachInfoBatch looks up several beaches with weather. Each ID gets its own
// item; a failed ID carries an error document and never aborts the others.
// Items are returned in request order.
func (s *Service) BeachInfoBatch(ctx context.Context, ids []string) []domain.BatchItem {
	items := make([]domain.BatchItem, len(ids))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			info, err := s.BeachInfoWithWeather(ctx, id)
			if err != nil {
				doc := domain.ToErrorDoc(err)
				items[i] = domain.BatchItem{Error: &doc}
				s.logger.Info("batch item failed", "beach_id", id, "error_type", doc.ErrorType, "error", err)
				return nil
			}
			items[i] = domain.BatchItem{BeachInfo: &info}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// SplitIDs parses a comma-separated ID list, dropping blanks and repeats.
func SplitIDs(s string) []string {
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" && !seen[p] {
			seen[p] = true
			ids = append(ids, p)
		}
	}
	return ids
}

// enrich renders each key's record with current weather. Weather failures
// are recorded per record. If every record failed for a reason other than a
// classified query error the upstream is considered down and the first such
// error is returned, so the page is not cached.
func (s *Service) enrich(ctx context.Context, keys []string) (map[string]domain.BeachInfo, error) {
	infos := make([]domain.BeachInfo, len(keys))
	errs := make([]error, len(keys))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			rec, ok := s.catalog.Lookup(key)
			if !ok {
				errs[i] = domain.NewQueryError(domain.ErrNotFound, domain.ErrorTypeInvalidBeachID, "Beach %s is not in the catalog", key)
				return nil
			}
			infos[i] = domain.NewBeachInfo(rec)

			coord, err := s.coordinateOf(rec)
			if err == nil {
				var w domain.Weather
				if w, err = s.CurrentWeather(ctx, coord); err == nil {
					infos[i].Weather = &w
					return nil
				}
			}
			errs[i] = err
			doc := domain.ToErrorDoc(err)
			infos[i].WeatherError = &doc
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstUnclassified error
	unclassified := 0
	result := make(map[string]domain.BeachInfo, len(keys))
	for i, key := range keys {
		result[key] = infos[i]
		var qe *domain.QueryError
		if errs[i] != nil && !errors.As(errs[i], &qe) {
			unclassified++
			if firstUnclassified == nil {
				firstUnclassified = errs[i]
			}
		}
	}
	if len(keys) > 0 && unclassified == len(keys) {
		return nil, firstUnclassified
	}
	return result, nil
}
