package domain

// CatalogRecord is one coastal site from the static catalog. Records are
// loaded once and never mutated.
type CatalogRecord struct {
	ID      string
	Name    string
	County  string
	State   string
	Tribe   string
	Length  Measure // miles
	Access  string
	JoinKey string

	// Coordinate descriptor. Each endpoint is independently optional; the
	// upstream data often omits one end when it would be close to the other.
	StartLat Measure
	EndLat   Measure
	StartLon Measure
	EndLon   Measure
}

// BeachInfo is the public rendering of a catalog record, optionally enriched
// with current weather.
type BeachInfo struct {
	Name      string  `json:"beach_name"`
	County    string  `json:"beach_county"`
	State     string  `json:"beach_state"`
	Tribe     string  `json:"beach_tribe"`
	Length    Measure `json:"beach_length"`
	Access    string  `json:"beach_access"`
	Latitude  Measure `json:"latitude"`
	Longitude Measure `json:"longitude"`
	JoinKey   string  `json:"joinkey"`

	Weather      *Weather  `json:"weather,omitempty"`
	WeatherError *ErrorDoc `json:"weather_error,omitempty"`
}

// NewBeachInfo renders a record with its resolved coordinate. An absent
// coordinate renders both axes as the empty marker.
func NewBeachInfo(rec CatalogRecord) BeachInfo {
	info := BeachInfo{
		Name:    rec.Name,
		County:  rec.County,
		State:   rec.State,
		Tribe:   rec.Tribe,
		Length:  rec.Length,
		Access:  rec.Access,
		JoinKey: rec.JoinKey,
	}
	if c := ResolveCoordinate(rec); c.Valid {
		info.Latitude = Some(c.Lat)
		info.Longitude = Some(c.Lon)
	}
	return info
}

// BatchItem is one entry of a batch lookup: either the enriched record or the
// error that prevented producing it.
type BatchItem struct {
	*BeachInfo
	Error *ErrorDoc `json:"error,omitempty"`
}

// SearchResult is the output of every search operation: the page of keys in
// rank order and the enriched record for each key.
type SearchResult struct {
	Order  []string             `json:"order"`
	Result map[string]BeachInfo `json:"result"`
}
