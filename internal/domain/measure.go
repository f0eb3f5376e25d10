package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Measure is a real-valued field that may be absent or unparseable. Absent
// values serialize as the empty string marker rather than null so consumers
// never have to distinguish null from missing.
type Measure struct {
	Value float64
	Valid bool
}

// Some returns a present measure.
func Some(v float64) Measure {
	return Measure{Value: v, Valid: true}
}

// ParseMeasure parses a catalog or upstream value. Empty strings, "N/A",
// NaN and infinities are all absent.
func ParseMeasure(s string) Measure {
	s = strings.TrimSpace(s)
	if s == "" {
		return Measure{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Measure{}
	}
	return Some(v)
}

// MeasureOf converts a decoded JSON value (number, string, or nil) to a Measure.
func MeasureOf(v any) Measure {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Measure{}
		}
		return Some(x)
	case json.Number:
		return ParseMeasure(x.String())
	case string:
		return ParseMeasure(x)
	default:
		return Measure{}
	}
}

func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte(`""`), nil
	}
	return json.Marshal(m.Value)
}

func (m *Measure) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Measure{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = ParseMeasure(s)
		return nil
	}
	*m = ParseMeasure(string(data))
	return nil
}
