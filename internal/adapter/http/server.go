package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/dispatch"
	"github.com/couchcryptid/beach-query-service/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxRequestBytes caps the size of a query document.
const maxRequestBytes = 1 << 20

// QueryHandler answers request documents.
type QueryHandler interface {
	Handle(ctx context.Context, raw []byte) dispatch.Response
}

// Server exposes the query endpoint plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	queries    QueryHandler
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// POST /v1/query routes.
func NewServer(addr string, queries QueryHandler, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		queries: queries,
		logger:  logger.With("component", "http"),
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/query", s.handleQuery)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Warn("read query body failed", "error", err)
		http.Error(w, "unreadable request body", http.StatusBadRequest)
		return
	}

	resp := s.queries.Handle(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", resp.RequestID)
	w.WriteHeader(statusFor(resp))
	if _, err := w.Write(resp.Body); err != nil {
		s.logger.Debug("write query response failed", "request_id", resp.RequestID, "error", err)
	}
}

// statusFor maps a response document to an HTTP status. The document itself
// is the same one the Kafka transport publishes.
func statusFor(resp dispatch.Response) int {
	if !resp.Failed() {
		return http.StatusOK
	}
	switch resp.ErrorType {
	case domain.ErrorTypeInvalidBeachID:
		return http.StatusNotFound
	case domain.ErrorTypeMissingRequestType, domain.ErrorTypeRequestTypeInvalid, domain.ErrorTypeMalformedRequest,
		domain.ErrorTypeInvalidZipCode, domain.ErrorTypeInvalidCoordinates:
		return http.StatusBadRequest
	case domain.ErrorTypeNoTempUnit, domain.ErrorTypeNoForecast, domain.ErrorTypeUpstreamFailure:
		return http.StatusBadGateway
	case domain.ErrorTypeCacheLockTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Readiness combines checkers; the service is ready when all of them are.
type Readiness []sharedobs.ReadinessChecker

// CheckReadiness returns the first checker's error, if any.
func (rs Readiness) CheckReadiness(ctx context.Context) error {
	for _, r := range rs {
		if err := r.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
