// Package openmeteo fetches the current UV index from the Open-Meteo
// forecast API, which the weather service does not provide.
package openmeteo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/couchcryptid/beach-query-service/internal/adapter/upstream"
	"github.com/couchcryptid/beach-query-service/internal/domain"
)

// Client implements the UV index collaborator.
type Client struct {
	api *upstream.Client
}

// NewClient creates an Open-Meteo client.
func NewClient(api *upstream.Client) *Client {
	return &Client{api: api}
}

// UVIndex returns the current UV index at coord. A null reading is an
// absent measure, not an error.
func (c *Client) UVIndex(ctx context.Context, coord domain.Coordinate) (domain.Measure, error) {
	query := url.Values{
		"latitude":  {strconv.FormatFloat(coord.Lat, 'f', 4, 64)},
		"longitude": {strconv.FormatFloat(coord.Lon, 'f', 4, 64)},
		"current":   {"uv_index"},
		"timezone":  {"UTC"},
	}

	var resp struct {
		Current struct {
			UVIndex domain.Measure `json:"uv_index"`
		} `json:"current"`
	}
	if err := c.api.GetJSON(ctx, "/v1/forecast", query, &resp); err != nil {
		return domain.Measure{}, fmt.Errorf("fetch uv index: %w", err)
	}
	return resp.Current.UVIndex, nil
}
