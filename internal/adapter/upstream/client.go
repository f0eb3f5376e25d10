// Package upstream is the shared HTTP plumbing for external JSON APIs:
// timeouts, a circuit breaker per API, bounded retries on server errors,
// and request metrics.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/observability"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned without contacting the API while its breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// StatusError is a non-2xx response.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Service, e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 from an upstream API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Config describes one upstream API.
type Config struct {
	Name       string
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	// RateLimit caps requests per second. Zero means unlimited.
	RateLimit float64
}

// Client performs JSON GET requests against a single API.
type Client struct {
	name       string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	backoff    time.Duration
	limiter    *rate.Limiter
	metrics    *observability.Metrics
}

// NewClient creates a client for cfg.
func NewClient(cfg Config, metrics *observability.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Client{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		limiter:    limiter,
		metrics:    metrics,
	}
}

// Name returns the API name used in metrics and errors.
func (c *Client) Name() string { return c.name }

// GetJSON fetches ref and decodes the body into out. ref is either a path
// relative to the base URL or an absolute URL handed out by the API itself.
func (c *Client) GetJSON(ctx context.Context, ref string, query url.Values, out any) error {
	target := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(ref, "/")
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	start := time.Now()
	body, err := c.fetch(ctx, target)
	c.metrics.UpstreamDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrCircuitOpen) {
			outcome = "open"
		}
		c.metrics.UpstreamRequests.WithLabelValues(c.name, outcome).Inc()
		return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
	c.metrics.UpstreamRequests.WithLabelValues(c.name, "success").Inc()

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

// fetch runs the request through the breaker, retrying server errors and
// transport failures with exponential backoff. Client errors are returned
// at once and do not count against the breaker.
func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, err := c.attempt(ctx, target)
		if err == nil {
			return body, nil
		}

		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 && se.Code != http.StatusTooManyRequests {
			return nil, err
		}
		if errors.Is(err, ErrCircuitOpen) || attempt >= c.maxRetries || ctx.Err() != nil {
			return nil, err
		}

		delay := c.backoff << attempt
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

type clientError struct{ err *StatusError }

func (c *Client) attempt(ctx context.Context, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit: %w", c.name, err)
	}
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/geo+json, application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request: %w", c.name, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", c.name, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			se := &StatusError{Service: c.name, Code: resp.StatusCode, Body: truncate(string(body), 256)}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return nil, se
			}
			// Successful exchange from the breaker's point of view.
			return clientError{se}, nil
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
		}
		return nil, err
	}

	switch v := result.(type) {
	case clientError:
		return nil, v.err
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected %s result type %T", c.name, result)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
