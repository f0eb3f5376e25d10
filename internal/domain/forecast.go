package domain

import (
	"time"
)

// ForecastPeriod is one contiguous forecast window [StartTime, EndTime).
type ForecastPeriod struct {
	Number          int       `json:"number,omitempty"`
	Name            string    `json:"name,omitempty"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	IsDaytime       bool      `json:"isDaytime"`
	Temperature     Measure   `json:"temperature"`
	TemperatureUnit string    `json:"temperatureUnit,omitempty"`
	ProbPrecip      Measure   `json:"probPrecip"`
	RelHumidity     Measure   `json:"relHumidity"`
	WindSpeed       string    `json:"windSpeed"`
	WindDirection   string    `json:"windDirection"`
	ShortForecast   string    `json:"forecastSummary"`
}

// Contains reports whether t falls in the half-open interval [StartTime, EndTime).
func (p ForecastPeriod) Contains(t time.Time) bool {
	return !t.Before(p.StartTime) && t.Before(p.EndTime)
}

// LocatePeriod returns the first period whose interval contains instant.
// Periods are expected in chronological order with no overlap, so at most one
// matches; an instant at a shared boundary belongs to the later period.
func LocatePeriod(periods []ForecastPeriod, instant time.Time) (ForecastPeriod, bool) {
	for _, p := range periods {
		if p.Contains(instant) {
			return p, true
		}
	}
	return ForecastPeriod{}, false
}
