// Package nws is the weather and advisory collaborator backed by the
// National Weather Service API (https://www.weather.gov/documentation/services-web-api).
package nws

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/adapter/upstream"
	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/observability"
)

var zonePattern = regexp.MustCompile(`^[A-Z]{2}[ZC][0-9]{3}$`)

// Client resolves forecasts and active alerts for a coordinate.
type Client struct {
	api     *upstream.Client
	points  *pointCache
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates an NWS client. pointCacheSize bounds the in-process
// cache of coordinate to forecast-office grid lookups.
func NewClient(api *upstream.Client, pointCacheSize int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		api:     api,
		points:  newPointCache(pointCacheSize),
		logger:  logger,
		metrics: metrics,
	}
}

type gridPoint struct {
	ForecastURL string
	ZoneURL     string
}

// Forecast returns the forecast periods covering coord in chronological order.
func (c *Client) Forecast(ctx context.Context, coord domain.Coordinate) ([]domain.ForecastPeriod, error) {
	pt, err := c.point(ctx, coord)
	if err != nil {
		return nil, err
	}
	if pt.ForecastURL == "" {
		return nil, domain.NewQueryError(domain.ErrUpstreamDataMissing, domain.ErrorTypeNoForecast,
			"The weather service has no forecast for this location")
	}

	var resp forecastResponse
	if err := c.api.GetJSON(ctx, pt.ForecastURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}

	periods := make([]domain.ForecastPeriod, len(resp.Properties.Periods))
	for i, p := range resp.Properties.Periods {
		periods[i] = p.toDomain()
	}
	return periods, nil
}

// CurrentConditions normalizes the first forecast period.
func (c *Client) CurrentConditions(ctx context.Context, coord domain.Coordinate) (domain.Weather, error) {
	periods, err := c.Forecast(ctx, coord)
	if err != nil {
		return domain.Weather{}, err
	}
	if len(periods) == 0 {
		return domain.Weather{}, domain.NewQueryError(domain.ErrUpstreamDataMissing, domain.ErrorTypeNoForecast,
			"The weather service returned no forecast periods for this location")
	}
	return domain.NormalizePeriod(periods[0])
}

// ActiveAdvisories returns the alerts currently issued for a forecast zone
// such as "VAZ098", in the order the API lists them.
func (c *Client) ActiveAdvisories(ctx context.Context, zoneID string) ([]domain.Advisory, error) {
	zoneID = strings.ToUpper(strings.TrimSpace(zoneID))
	if !zonePattern.MatchString(zoneID) {
		return nil, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeMalformedRequest,
			"Zone ID %q is not a forecast zone identifier", zoneID)
	}

	var resp alertsResponse
	if err := c.api.GetJSON(ctx, "/alerts/active/zone/"+zoneID, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch alerts for zone %s: %w", zoneID, err)
	}

	advisories := make([]domain.Advisory, 0, len(resp.Features))
	for _, f := range resp.Features {
		advisories = append(advisories, f.Properties.toDomain())
	}
	return advisories, nil
}

// Advisories returns the alerts for the forecast zone containing coord.
func (c *Client) Advisories(ctx context.Context, coord domain.Coordinate) ([]domain.Advisory, error) {
	zoneID, err := c.Zone(ctx, coord)
	if err != nil {
		return nil, err
	}
	return c.ActiveAdvisories(ctx, zoneID)
}

// Zone returns the forecast zone ID containing coord.
func (c *Client) Zone(ctx context.Context, coord domain.Coordinate) (string, error) {
	pt, err := c.point(ctx, coord)
	if err != nil {
		return "", err
	}
	zoneID := path.Base(pt.ZoneURL)
	if pt.ZoneURL == "" || !zonePattern.MatchString(zoneID) {
		return "", domain.NewQueryError(domain.ErrUpstreamDataMissing, domain.ErrorTypeUpstreamFailure,
			"The weather service did not report a forecast zone for this location")
	}
	return zoneID, nil
}

func (c *Client) point(ctx context.Context, coord domain.Coordinate) (gridPoint, error) {
	key := formatPoint(coord)
	if pt, ok := c.points.lookup(key); ok {
		c.metrics.PointCache.WithLabelValues("hit").Inc()
		return pt, nil
	}
	c.metrics.PointCache.WithLabelValues("miss").Inc()

	var resp pointResponse
	if err := c.api.GetJSON(ctx, "/points/"+key, nil, &resp); err != nil {
		if upstream.IsNotFound(err) {
			return gridPoint{}, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeInvalidCoordinates,
				"The weather service does not cover %s", key)
		}
		return gridPoint{}, fmt.Errorf("resolve grid point: %w", err)
	}

	pt := gridPoint{ForecastURL: resp.Properties.Forecast, ZoneURL: resp.Properties.ForecastZone}
	c.points.store(key, pt)
	c.logger.Debug("nws grid point resolved", "point", key, "forecast", pt.ForecastURL)
	return pt, nil
}

// formatPoint renders a coordinate at the 4-decimal precision the API
// accepts; it redirects requests with more digits.
func formatPoint(coord domain.Coordinate) string {
	return fmt.Sprintf("%.4f,%.4f", coord.Lat, coord.Lon)
}

// NWS API response types.

type pointResponse struct {
	Properties struct {
		Forecast     string `json:"forecast"`
		ForecastZone string `json:"forecastZone"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []period `json:"periods"`
	} `json:"properties"`
}

type quantity struct {
	UnitCode string         `json:"unitCode"`
	Value    domain.Measure `json:"value"`
}

type period struct {
	Number                     int            `json:"number"`
	Name                       string         `json:"name"`
	StartTime                  time.Time      `json:"startTime"`
	EndTime                    time.Time      `json:"endTime"`
	IsDaytime                  bool           `json:"isDaytime"`
	Temperature                domain.Measure `json:"temperature"`
	TemperatureUnit            string         `json:"temperatureUnit"`
	ProbabilityOfPrecipitation quantity       `json:"probabilityOfPrecipitation"`
	RelativeHumidity           quantity       `json:"relativeHumidity"`
	WindSpeed                  string         `json:"windSpeed"`
	WindDirection              string         `json:"windDirection"`
	ShortForecast              string         `json:"shortForecast"`
}

func (p period) toDomain() domain.ForecastPeriod {
	return domain.ForecastPeriod{
		Number:          p.Number,
		Name:            p.Name,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		IsDaytime:       p.IsDaytime,
		Temperature:     p.Temperature,
		TemperatureUnit: p.TemperatureUnit,
		ProbPrecip:      p.ProbabilityOfPrecipitation.Value,
		RelHumidity:     p.RelativeHumidity.Value,
		WindSpeed:       p.WindSpeed,
		WindDirection:   p.WindDirection,
		ShortForecast:   p.ShortForecast,
	}
}

type alertsResponse struct {
	Features []struct {
		Properties alert `json:"properties"`
	} `json:"features"`
}

type alert struct {
	ID        string     `json:"id"`
	Headline  string     `json:"headline"`
	Event     string     `json:"event"`
	Severity  string     `json:"severity"`
	Effective *time.Time `json:"effective"`
	Onset     *time.Time `json:"onset"`
	Ends      *time.Time `json:"ends"`
	Expires   *time.Time `json:"expires"`
}

// toDomain fills a missing onset from effective and a missing end from
// expires; an alert with neither end time stays open-ended.
func (a alert) toDomain() domain.Advisory {
	adv := domain.Advisory{
		ID:       a.ID,
		Headline: a.Headline,
		Event:    a.Event,
		Severity: a.Severity,
	}
	if adv.Headline == "" {
		adv.Headline = a.Event
	}
	switch {
	case a.Onset != nil:
		adv.Onset = *a.Onset
	case a.Effective != nil:
		adv.Onset = *a.Effective
	}
	switch {
	case a.Ends != nil:
		adv.Ends = *a.Ends
	case a.Expires != nil:
		adv.Ends = *a.Expires
	}
	return adv
}
