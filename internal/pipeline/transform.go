package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/dispatch"
	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// RequestHandler answers one request document.
type RequestHandler interface {
	Handle(ctx context.Context, raw []byte) dispatch.Response
}

// Headers copied from a request onto its response.
var propagatedHeaders = []string{"reply_to", "correlation_id"}

// RequestTransformer implements Transformer by running each request through
// the dispatcher and wrapping the response document for the response topic.
type RequestTransformer struct {
	handler RequestHandler
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewTransformer creates a RequestTransformer.
func NewTransformer(handler RequestHandler, clock clockwork.Clock, logger *slog.Logger) *RequestTransformer {
	return &RequestTransformer{
		handler: handler,
		clock:   clock,
		logger:  logger,
	}
}

// Transform answers raw. The response is keyed like the request, or by its
// request ID when the request has no key. It fails only when ctx ended while
// the request was being answered, so the request is redelivered instead of
// answered with a shutdown artifact.
func (t *RequestTransformer) Transform(ctx context.Context, raw domain.RawMessage) (domain.OutputMessage, error) {
	resp := t.handler.Handle(ctx, raw.Value)
	if err := ctx.Err(); err != nil {
		return domain.OutputMessage{}, err
	}

	key := raw.Key
	if len(key) == 0 {
		key = []byte(resp.RequestID)
	}

	headers := map[string]string{
		"request_id":   resp.RequestID,
		"code":         resp.Code,
		"processed_at": t.clock.Now().UTC().Format(time.RFC3339),
	}
	if resp.RequestType != "" {
		headers["request_type"] = resp.RequestType
	}
	if resp.ErrorType != "" {
		headers["error_type"] = resp.ErrorType
	}
	for _, h := range propagatedHeaders {
		if v, ok := raw.Headers[h]; ok {
			headers[h] = v
		}
	}

	return domain.OutputMessage{Key: key, Value: resp.Body, Headers: headers}, nil
}
