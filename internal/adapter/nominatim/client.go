// Package nominatim resolves postal codes to coordinates with the
// OpenStreetMap Nominatim search API.
package nominatim

import (
	"context"
	"fmt"
	"net/url"

	"github.com/couchcryptid/beach-query-service/internal/adapter/upstream"
	"github.com/couchcryptid/beach-query-service/internal/domain"
)

// Client implements the zip code locator.
type Client struct {
	api *upstream.Client
}

// NewClient creates a Nominatim client.
func NewClient(api *upstream.Client) *Client {
	return &Client{api: api}
}

// LocateZip returns the centroid of a postal code. An unknown code is an
// InvalidQuery error.
func (c *Client) LocateZip(ctx context.Context, zip, countryCode string) (domain.Coordinate, error) {
	if countryCode == "" {
		countryCode = "US"
	}
	query := url.Values{
		"postalcode":   {zip},
		"countrycodes": {countryCode},
		"format":       {"jsonv2"},
		"limit":        {"1"},
	}

	var places []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := c.api.GetJSON(ctx, "/search", query, &places); err != nil {
		return domain.Coordinate{}, fmt.Errorf("locate zip code: %w", err)
	}
	if len(places) == 0 {
		return domain.Coordinate{}, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeInvalidZipCode,
			"Zip code %s could not be located", zip)
	}

	lat := domain.ParseMeasure(places[0].Lat)
	lon := domain.ParseMeasure(places[0].Lon)
	if !lat.Valid || !lon.Valid {
		return domain.Coordinate{}, domain.NewQueryError(domain.ErrUpstreamDataMissing, domain.ErrorTypeUpstreamFailure,
			"The geocoding service returned an unreadable location for zip code %s", zip)
	}
	return domain.Point(lat.Value, lon.Value), nil
}
