// Package dispatch decodes request documents, routes them to the beach
// service by request type, and encodes the response document. Every response
// carries a code: the request type on success, "ERROR" otherwise.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/observability"
	"github.com/couchcryptid/beach-query-service/internal/service"
	"github.com/google/uuid"
)

// Request types.
const (
	RequestCurrentWeather   = "current_basic_weather"
	RequestBeachInfo        = "get_beach_info_by_id"
	RequestBeachInfoWeather = "get_beach_info_weather_by_id"
	RequestBeachInfoBatch   = "get_beach_info_weather_by_id_batch"
	RequestSearchByZip      = "search_beach_by_zip"
	RequestSearchByLocation = "search_beach_by_location"
	RequestSearchByName     = "search_beach_by_name"
	RequestForecastAtTime   = "forecast_at_time"
	RequestActiveAdvisories = "active_advisories"
	RequestCheckEvent       = "check_event"
)

const (
	keyRequestType     = "request_type"
	keyRequestID       = "request_id"
	unknownRequestType = "unknown"
	defaultCountryCode = "US"
)

// Service is the set of query operations the dispatcher routes to.
type Service interface {
	Now() time.Time
	CurrentWeather(ctx context.Context, coord domain.Coordinate) (domain.Weather, error)
	CurrentWeatherByZip(ctx context.Context, zip, countryCode string) (domain.Weather, error)
	BeachInfo(ctx context.Context, id string) (domain.BeachInfo, error)
	BeachInfoWithWeather(ctx context.Context, id string) (domain.BeachInfo, error)
	BeachInfoBatch(ctx context.Context, ids []string) []domain.BatchItem
	SearchByZip(ctx context.Context, zip string, w service.Window) (domain.SearchResult, error)
	SearchByLocation(ctx context.Context, lat, lon float64, w service.Window) (domain.SearchResult, error)
	SearchByName(ctx context.Context, name string, w service.Window) (domain.SearchResult, error)
	ForecastAt(ctx context.Context, beachID string, instant time.Time) (domain.ForecastPeriod, bool, error)
	AdvisoriesForBeach(ctx context.Context, beachID string, instant time.Time) ([]string, error)
	AdvisoriesForZone(ctx context.Context, zoneID string, instant time.Time) ([]string, error)
	CheckEvent(ctx context.Context, beachID string, instant time.Time) (domain.EventCheck, error)
}

// Response is an encoded response document plus the routing attributes the
// transports need.
type Response struct {
	RequestID   string
	RequestType string
	// Code is RequestType on success and domain.CodeError on failure.
	Code string
	// ErrorType is set when Code is domain.CodeError.
	ErrorType string
	Body      []byte
}

// Failed reports whether the response is an error document.
func (r Response) Failed() bool {
	return r.Code == domain.CodeError
}

type operation func(h *Handler, ctx context.Context, r request) (any, error)

var operations = map[string]operation{
	RequestCurrentWeather:   (*Handler).currentWeather,
	RequestBeachInfo:        (*Handler).beachInfo,
	RequestBeachInfoWeather: (*Handler).beachInfoWeather,
	RequestBeachInfoBatch:   (*Handler).beachInfoBatch,
	RequestSearchByZip:      (*Handler).searchByZip,
	RequestSearchByLocation: (*Handler).searchByLocation,
	RequestSearchByName:     (*Handler).searchByName,
	RequestForecastAtTime:   (*Handler).forecastAtTime,
	RequestActiveAdvisories: (*Handler).activeAdvisories,
	RequestCheckEvent:       (*Handler).checkEvent,
}

// Handler turns request documents into response documents.
type Handler struct {
	svc     Service
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Handler.
func New(svc Service, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		svc:     svc,
		metrics: metrics,
		logger:  logger.With("component", "dispatch"),
	}
}

// Handle answers one request document. It never fails: every problem,
// including an undecodable request, is reported as an error document.
func (h *Handler) Handle(ctx context.Context, raw []byte) Response {
	start := time.Now()

	r, err := decodeRequest(raw)
	requestID := h.requestID(r)

	label := unknownRequestType
	var payload any
	if err == nil {
		op, ok := operations[r.typ]
		if ok {
			label = r.typ
			payload, err = op(h, ctx, r)
		} else {
			err = domain.NewQueryError(domain.ErrInvalidQuery, domain.ErrorTypeRequestTypeInvalid,
				"Request type '%s' is not recognized", r.typ)
		}
	}

	var resp Response
	if err != nil {
		resp = h.errorResponse(requestID, r.typ, err)
	} else {
		resp, err = h.successResponse(requestID, r.typ, payload)
		if err != nil {
			resp = h.errorResponse(requestID, r.typ, err)
		}
	}

	h.metrics.Requests.WithLabelValues(label, outcome(resp)).Inc()
	h.metrics.RequestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return resp
}

func outcome(r Response) string {
	if r.Failed() {
		return domain.CodeError
	}
	return "SUCCESS"
}

func (h *Handler) requestID(r request) string {
	if r.has(keyRequestID) {
		if id, err := r.string(keyRequestID); err == nil && id != "" {
			return id
		}
	}
	return uuid.NewString()
}

func (h *Handler) successResponse(requestID, requestType string, payload any) (Response, error) {
	body, err := encode(payload, requestType, requestID)
	if err != nil {
		return Response{}, fmt.Errorf("encode %s response: %w", requestType, err)
	}
	return Response{
		RequestID:   requestID,
		RequestType: requestType,
		Code:        requestType,
		Body:        body,
	}, nil
}

func (h *Handler) errorResponse(requestID, requestType string, err error) Response {
	doc := domain.ToErrorDoc(err)
	h.metrics.RequestErrors.WithLabelValues(doc.ErrorType).Inc()

	attrs := []any{"request_id", requestID, "request_type", requestType, "error_type", doc.ErrorType, "error", err}
	if errors.Is(err, domain.ErrInvalidQuery) || errors.Is(err, domain.ErrNotFound) {
		h.logger.Info("request rejected", attrs...)
	} else {
		h.logger.Error("request failed", attrs...)
	}

	body, mErr := encode(doc, "", requestID)
	if mErr != nil {
		// ErrorDoc holds only strings; this cannot fail.
		body = []byte(`{"code":"ERROR"}`)
	}
	return Response{
		RequestID:   requestID,
		RequestType: requestType,
		Code:        domain.CodeError,
		ErrorType:   doc.ErrorType,
		Body:        body,
	}
}

// encode flattens payload's JSON object fields into the response document
// alongside code and request_id. An empty code keeps the payload's own.
func encode(payload any, code, requestID string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if code != "" {
		if fields["code"], err = json.Marshal(code); err != nil {
			return nil, err
		}
	}
	if fields[keyRequestID], err = json.Marshal(requestID); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}
