package dispatch

import (
	"context"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/service"
)

func (h *Handler) currentWeather(ctx context.Context, r request) (any, error) {
	if r.has("zip_code") {
		zip, err := r.string("zip_code")
		if err != nil {
			return nil, err
		}
		country, err := r.stringOr("country_code", defaultCountryCode)
		if err != nil {
			return nil, err
		}
		return h.svc.CurrentWeatherByZip(ctx, zip, country)
	}

	if !r.has("latitude") || !r.has("longitude") {
		return nil, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeMalformedRequest,
			"Malformed request for request type '%s' (must specify either zip_code or latitude and longitude)", r.typ)
	}
	lat, err := r.float("latitude")
	if err != nil {
		return nil, err
	}
	lon, err := r.float("longitude")
	if err != nil {
		return nil, err
	}
	point, err := service.NormalizePoint(lat, lon)
	if err != nil {
		return nil, err
	}
	return h.svc.CurrentWeather(ctx, point)
}

func (h *Handler) beachInfo(ctx context.Context, r request) (any, error) {
	id, err := r.string("beach_id")
	if err != nil {
		return nil, err
	}
	return h.svc.BeachInfo(ctx, id)
}

func (h *Handler) beachInfoWeather(ctx context.Context, r request) (any, error) {
	id, err := r.string("beach_id")
	if err != nil {
		return nil, err
	}
	return h.svc.BeachInfoWithWeather(ctx, id)
}

// batchResult keys each requested ID to its item and keeps request order.
type batchResult struct {
	Order  []string                    `json:"order"`
	Result map[string]domain.BatchItem `json:"result"`
}

func (h *Handler) beachInfoBatch(ctx context.Context, r request) (any, error) {
	list, err := r.string("beach_ids")
	if err != nil {
		return nil, err
	}
	ids := service.SplitIDs(list)
	items := h.svc.BeachInfoBatch(ctx, ids)

	res := batchResult{Order: ids, Result: make(map[string]domain.BatchItem, len(ids))}
	for i, id := range ids {
		res.Result[id] = items[i]
	}
	return res, nil
}

func (h *Handler) window(r request) (service.Window, error) {
	start, err := r.int("start")
	if err != nil {
		return service.Window{}, err
	}
	stop, err := r.int("stop")
	if err != nil {
		return service.Window{}, err
	}
	return service.Window{Start: start, Stop: stop}, nil
}

func (h *Handler) searchByZip(ctx context.Context, r request) (any, error) {
	zip, err := r.string("zip_code")
	if err != nil {
		return nil, err
	}
	w, err := h.window(r)
	if err != nil {
		return nil, err
	}
	return h.svc.SearchByZip(ctx, zip, w)
}

func (h *Handler) searchByLocation(ctx context.Context, r request) (any, error) {
	lat, err := r.float("latitude")
	if err != nil {
		return nil, err
	}
	lon, err := r.float("longitude")
	if err != nil {
		return nil, err
	}
	w, err := h.window(r)
	if err != nil {
		return nil, err
	}
	return h.svc.SearchByLocation(ctx, lat, lon, w)
}

func (h *Handler) searchByName(ctx context.Context, r request) (any, error) {
	query, err := r.string("query")
	if err != nil {
		return nil, err
	}
	w, err := h.window(r)
	if err != nil {
		return nil, err
	}
	return h.svc.SearchByName(ctx, query, w)
}

type forecastResult struct {
	Found  bool                   `json:"found"`
	Period *domain.ForecastPeriod `json:"period,omitempty"`
}

func (h *Handler) forecastAtTime(ctx context.Context, r request) (any, error) {
	id, err := r.string("beach_id")
	if err != nil {
		return nil, err
	}
	instant, err := r.timeOr("time", h.svc.Now())
	if err != nil {
		return nil, err
	}
	period, found, err := h.svc.ForecastAt(ctx, id, instant)
	if err != nil {
		return nil, err
	}
	if !found {
		return forecastResult{}, nil
	}
	return forecastResult{Found: true, Period: &period}, nil
}

type advisoriesResult struct {
	Advisories []string `json:"advisories"`
}

func (h *Handler) activeAdvisories(ctx context.Context, r request) (any, error) {
	instant, err := r.timeOr("time", h.svc.Now())
	if err != nil {
		return nil, err
	}

	var headlines []string
	switch {
	case r.has("beach_id"):
		id, err := r.string("beach_id")
		if err != nil {
			return nil, err
		}
		headlines, err = h.svc.AdvisoriesForBeach(ctx, id, instant)
		if err != nil {
			return nil, err
		}
	case r.has("zone_id"):
		zone, err := r.string("zone_id")
		if err != nil {
			return nil, err
		}
		headlines, err = h.svc.AdvisoriesForZone(ctx, zone, instant)
		if err != nil {
			return nil, err
		}
	default:
		return nil, domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeMalformedRequest,
			"Malformed request for request type '%s' (must specify either beach_id or zone_id)", r.typ)
	}

	if headlines == nil {
		headlines = []string{}
	}
	return advisoriesResult{Advisories: headlines}, nil
}

func (h *Handler) checkEvent(ctx context.Context, r request) (any, error) {
	id, err := r.string("beach_id")
	if err != nil {
		return nil, err
	}
	instant, err := r.timeOr("time", h.svc.Now())
	if err != nil {
		return nil, err
	}
	return h.svc.CheckEvent(ctx, id, instant)
}
