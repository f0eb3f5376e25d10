package domain

import (
	"strings"
	"time"
)

// Weather is the normalized current-conditions payload. Temperature is always
// Fahrenheit; fields the provider left null carry the empty marker.
type Weather struct {
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	IsDaytime       bool      `json:"isDaytime"`
	Temperature     Measure   `json:"temperature"`
	ProbPrecip      Measure   `json:"probPrecip"`
	RelHumidity     Measure   `json:"relHumidity"`
	WindSpeed       string    `json:"windSpeed"`
	WindDirection   string    `json:"windDirection"`
	ForecastSummary string    `json:"forecastSummary"`
	UVIndex         Measure   `json:"uvIndex"`
}

// NormalizePeriod converts a raw forecast period to the Weather payload. A
// period without a temperature unit breaks the provider contract and is
// reported as ErrUpstreamDataMissing.
func NormalizePeriod(p ForecastPeriod) (Weather, error) {
	unit := strings.ToUpper(strings.TrimSpace(p.TemperatureUnit))
	if unit == "" {
		return Weather{}, NewQueryError(ErrUpstreamDataMissing, ErrorTypeNoTempUnit,
			"The weather service did not indicate which units the temperature is reported in")
	}

	temp := p.Temperature
	if temp.Valid && unit == "C" {
		temp = Some(CelsiusToFahrenheit(temp.Value))
	}

	return Weather{
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		IsDaytime:       p.IsDaytime,
		Temperature:     temp,
		ProbPrecip:      p.ProbPrecip,
		RelHumidity:     p.RelHumidity,
		WindSpeed:       p.WindSpeed,
		WindDirection:   p.WindDirection,
		ForecastSummary: p.ShortForecast,
	}, nil
}

// CelsiusToFahrenheit converts degrees Celsius to Fahrenheit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// EventCheck is the outcome of evaluating a planned beach visit.
type EventCheck struct {
	Action     string          `json:"action"` // "notify" or "none"
	Title      string          `json:"title,omitempty"`
	Message    string          `json:"message,omitempty"`
	Period     *ForecastPeriod `json:"period,omitempty"`
	Advisories []string        `json:"advisories,omitempty"`
}

// Event check actions.
const (
	ActionNotify = "notify"
	ActionNone   = "none"
)

// Notification is an outbound message for an external delivery channel.
type Notification struct {
	ID        string    `json:"id"`
	BeachID   string    `json:"beach_id"`
	Recipient string    `json:"recipient,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	EventTime time.Time `json:"event_time"`
	CreatedAt time.Time `json:"created_at"`
}
