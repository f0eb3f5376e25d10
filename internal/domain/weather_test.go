package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePeriod_Fahrenheit(t *testing.T) {
	w, err := NormalizePeriod(ForecastPeriod{
		StartTime:       at(10, 0),
		EndTime:         at(11, 0),
		IsDaytime:       true,
		Temperature:     Some(84),
		TemperatureUnit: "F",
		ProbPrecip:      Some(20),
		WindSpeed:       "10 mph",
		WindDirection:   "SW",
		ShortForecast:   "Sunny",
	})
	require.NoError(t, err)

	assert.InDelta(t, 84.0, w.Temperature.Value, 1e-9)
	assert.InDelta(t, 20.0, w.ProbPrecip.Value, 1e-9)
	assert.False(t, w.RelHumidity.Valid)
	assert.Equal(t, "Sunny", w.ForecastSummary)
	assert.True(t, w.IsDaytime)
}

func TestNormalizePeriod_ConvertsCelsius(t *testing.T) {
	w, err := NormalizePeriod(ForecastPeriod{Temperature: Some(30), TemperatureUnit: "C"})
	require.NoError(t, err)
	assert.InDelta(t, 86.0, w.Temperature.Value, 1e-9)
}

func TestNormalizePeriod_MissingUnit(t *testing.T) {
	_, err := NormalizePeriod(ForecastPeriod{Temperature: Some(30)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamDataMissing))

	doc := ToErrorDoc(err)
	assert.Equal(t, CodeError, doc.Code)
	assert.Equal(t, ErrorTypeNoTempUnit, doc.ErrorType)
}

func TestWeather_AbsentFieldsUseEmptyMarker(t *testing.T) {
	w, err := NormalizePeriod(ForecastPeriod{TemperatureUnit: "F"})
	require.NoError(t, err)

	data, err := json.Marshal(w)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "", decoded["temperature"])
	assert.Equal(t, "", decoded["probPrecip"])
	assert.Equal(t, "", decoded["relHumidity"])
	assert.Equal(t, "", decoded["uvIndex"])
}

func TestMeasure_UnmarshalJSON(t *testing.T) {
	var v struct {
		A Measure `json:"a"`
		B Measure `json:"b"`
		C Measure `json:"c"`
		D Measure `json:"d"`
		E Measure `json:"e"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 1.5, "b": "2.5", "c": null, "d": "", "e": "N/A"}`), &v))

	assert.Equal(t, Some(1.5), v.A)
	assert.Equal(t, Some(2.5), v.B)
	assert.False(t, v.C.Valid)
	assert.False(t, v.D.Valid)
	assert.False(t, v.E.Valid)
}

func TestParseMeasure_RejectsNonFinite(t *testing.T) {
	assert.False(t, ParseMeasure("NaN").Valid)
	assert.False(t, ParseMeasure("Inf").Valid)
	assert.True(t, ParseMeasure(" 12.5 ").Valid)
}

func TestToErrorDoc_Unclassified(t *testing.T) {
	doc := ToErrorDoc(errors.New("boom"))
	assert.Equal(t, ErrorTypeInternal, doc.ErrorType)
	assert.NotContains(t, doc.Message, "boom")

	doc = ToErrorDoc(errors.Join(errors.New("wrapped"), ErrLockTimeout))
	assert.Equal(t, ErrorTypeCacheLockTimeout, doc.ErrorType)
}
