package nominatim

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/adapter/upstream"
	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "jsonv2", q.Get("format"))
		assert.Equal(t, "beach-query-test", r.Header.Get("User-Agent"))

		switch q.Get("postalcode") {
		case "23451":
			assert.Equal(t, "US", q.Get("countrycodes"))
			_, _ = w.Write([]byte(`[{"lat": "36.8529", "lon": "-75.9780", "display_name": "Virginia Beach"}]`))
		case "99999":
			_, _ = w.Write([]byte(`[]`))
		default:
			_, _ = w.Write([]byte(`[{"lat": "", "lon": "x"}]`))
		}
	}))
	t.Cleanup(srv.Close)

	api := upstream.NewClient(upstream.Config{
		Name: "nominatim", BaseURL: srv.URL, UserAgent: "beach-query-test", Timeout: time.Second,
	}, observability.NewMetricsForTesting())
	return NewClient(api)
}

func TestLocateZip(t *testing.T) {
	c := newTestClient(t)

	coord, err := c.LocateZip(context.Background(), "23451", "")
	require.NoError(t, err)
	assert.Equal(t, domain.Point(36.8529, -75.9780), coord)
}

func TestLocateZip_Unknown(t *testing.T) {
	c := newTestClient(t)

	_, err := c.LocateZip(context.Background(), "99999", "US")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidQuery))
	assert.Equal(t, domain.ErrorTypeInvalidZipCode, domain.ToErrorDoc(err).ErrorType)
}

func TestLocateZip_Unreadable(t *testing.T) {
	c := newTestClient(t)

	_, err := c.LocateZip(context.Background(), "00000", "US")
	assert.True(t, errors.Is(err, domain.ErrUpstreamDataMissing))
}
