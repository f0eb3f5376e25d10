package dispatch

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/domain"
)

// request is a decoded request document. Field values stay raw until an
// operation asks for them with the type it needs.
type request struct {
	typ    string
	fields map[string]json.RawMessage
}

func decodeRequest(raw []byte) (request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return request{}, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeMalformedRequest,
			"Requests must be JSON objects")
	}

	r := request{fields: fields}
	if !r.has(keyRequestType) {
		return r, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeMissingRequestType,
			"All requests must supply the '%s' key", keyRequestType)
	}
	typ, err := r.string(keyRequestType)
	if err != nil {
		return r, err
	}
	r.typ = typ
	return r, nil
}

// has reports whether key is present with a non-null value.
func (r request) has(key string) bool {
	v, ok := r.fields[key]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func (r request) missing(key string) error {
	return domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeMalformedRequest,
		"Malformed request for request type '%s' (missing key '%s')", r.typ, key)
}

func (r request) invalid(key, want string) error {
	return domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeMalformedRequest,
		"Malformed request for request type '%s' (key '%s' must be %s)", r.typ, key, want)
}

// string reads a text field. Numbers are accepted in their literal form so
// that numeric zip codes keep working.
func (r request) string(key string) (string, error) {
	if !r.has(key) {
		return "", r.missing(key)
	}
	raw := r.fields[key]

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", r.invalid(key, "a string")
}

func (r request) stringOr(key, def string) (string, error) {
	if !r.has(key) {
		return def, nil
	}
	return r.string(key)
}

// int reads an integer field given either as a JSON number or a numeric string.
func (r request) int(key string) (int, error) {
	s, err := r.string(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, r.invalid(key, "an integer")
	}
	return n, nil
}

// float reads a numeric field given either as a JSON number or a numeric string.
func (r request) float(key string) (float64, error) {
	s, err := r.string(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, r.invalid(key, "a number")
	}
	return f, nil
}

// timeOr reads an RFC 3339 timestamp, defaulting to def when absent.
func (r request) timeOr(key string, def time.Time) (time.Time, error) {
	if !r.has(key) {
		return def, nil
	}
	s, err := r.string(key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, r.invalid(key, "an RFC 3339 timestamp")
	}
	return t, nil
}
