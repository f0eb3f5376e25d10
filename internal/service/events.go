package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/domain"
)

// ForecastAt returns the forecast period covering instant at a beach. found
// is false when the forecast does not reach that far; that is not an error.
func (s *Service) ForecastAt(ctx context.Context, beachID string, instant time.Time) (period domain.ForecastPeriod, found bool, err error) {
	rec, err := s.lookup(beachID)
	if err != nil {
		return domain.ForecastPeriod{}, false, err
	}
	coord, err := s.coordinateOf(rec)
	if err != nil {
		return domain.ForecastPeriod{}, false, err
	}

	periods, err := s.weather.Forecast(ctx, coord)
	if err != nil {
		return domain.ForecastPeriod{}, false, err
	}
	period, found = domain.LocatePeriod(periods, instant)
	return period, found, nil
}

// AdvisoriesForBeach returns the headlines of the advisories active at
// instant in the forecast zone containing the beach.
func (s *Service) AdvisoriesForBeach(ctx context.Context, beachID string, instant time.Time) ([]string, error) {
	rec, err := s.lookup(beachID)
	if err != nil {
		return nil, err
	}
	coord, err := s.coordinateOf(rec)
	if err != nil {
		return nil, err
	}
	zoneID, err := s.advisories.Zone(ctx, coord)
	if err != nil {
		return nil, err
	}
	return s.AdvisoriesForZone(ctx, zoneID, instant)
}

// AdvisoriesForZone returns the headlines of the advisories active at
// instant in a forecast zone.
func (s *Service) AdvisoriesForZone(ctx context.Context, zoneID string, instant time.Time) ([]string, error) {
	advisories, err := s.advisories.ActiveAdvisories(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	return domain.MatchingAdvisories(advisories, instant), nil
}

// CheckEvent decides whether a planned visit to a beach at instant warrants
// a notification: it does when a forecast period covers the instant. The
// message summarizes that period and any advisory active at the time.
func (s *Service) CheckEvent(ctx context.Context, beachID string, instant time.Time) (domain.EventCheck, error) {
	rec, err := s.lookup(beachID)
	if err != nil {
		return domain.EventCheck{}, err
	}

	period, found, err := s.ForecastAt(ctx, beachID, instant)
	if err != nil {
		return domain.EventCheck{}, err
	}
	if !found {
		return domain.EventCheck{Action: domain.ActionNone}, nil
	}

	headlines, err := s.AdvisoriesForBeach(ctx, beachID, instant)
	if err != nil {
		s.logger.Warn("advisories unavailable for event check", "beach_id", beachID, "error", err)
		headlines = nil
	}

	return domain.EventCheck{
		Action:     domain.ActionNotify,
		Title:      fmt.Sprintf("Beach forecast for %s", displayName(rec)),
		Message:    eventMessage(period, headlines),
		Period:     &period,
		Advisories: headlines,
	}, nil
}

func displayName(rec domain.CatalogRecord) string {
	if rec.Name != "" {
		return rec.Name
	}
	return rec.ID
}

func eventMessage(p domain.ForecastPeriod, headlines []string) string {
	var b strings.Builder
	if p.Name != "" {
		b.WriteString(p.Name)
		b.WriteString(": ")
	}
	if p.ShortForecast != "" {
		b.WriteString(p.ShortForecast)
	} else {
		b.WriteString("Forecast available")
	}
	if p.Temperature.Valid {
		fmt.Fprintf(&b, ", %g°%s", p.Temperature.Value, p.TemperatureUnit)
	}
	if p.WindSpeed != "" {
		fmt.Fprintf(&b, ", wind %s %s", p.WindSpeed, p.WindDirection)
	}
	b.WriteString(".")
	if len(headlines) > 0 {
		b.WriteString(" Active advisories: ")
		b.WriteString(strings.Join(headlines, "; "))
		b.WriteString(".")
	}
	return b.String()
}
