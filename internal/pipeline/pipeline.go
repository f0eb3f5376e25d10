package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/observability"
	"golang.org/x/sync/errgroup"
)

// BatchExtractor reads up to batchSize raw requests from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Transformer converts a raw request into its response message.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawMessage) (domain.OutputMessage, error)
}

// BatchLoader writes multiple response messages to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, out []domain.OutputMessage) error
}

const (
	// transformConcurrency bounds the requests of one batch answered in parallel.
	transformConcurrency = 8

	minRetryDelay = 200 * time.Millisecond
	maxRetryDelay = 5 * time.Second
)

// Pipeline answers request batches: extract, transform, load, commit.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger.With("component", "pipeline"),
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has answered at least one
// request, or an error describing why it is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not answered any requests yet")
	}
	return nil
}

// Run answers batches until the context is cancelled. Extract and load
// failures are retried with a doubling delay between minRetryDelay and
// maxRetryDelay.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	retry := &retryDelay{next: minRetryDelay}
	for ctx.Err() == nil {
		if !p.runOnce(ctx, retry) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// runOnce answers one batch. It returns false when the pipeline should stop.
func (p *Pipeline) runOnce(ctx context.Context, retry *retryDelay) bool {
	start := time.Now()

	requests, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	switch {
	case ctx.Err() != nil:
		return false
	case err != nil:
		p.logger.Error("extract batch failed", "error", err)
		return retry.wait(ctx)
	case len(requests) == 0:
		return true
	}

	p.metrics.MessagesConsumed.Add(float64(len(requests)))
	p.metrics.BatchSize.Observe(float64(len(requests)))
	retry.reset()

	answered := p.answer(ctx, requests)
	if ctx.Err() != nil {
		// Uncommitted requests are redelivered after restart.
		return false
	}
	if len(answered.responses) == 0 {
		return true
	}

	if err := p.loader.LoadBatch(ctx, answered.responses); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(answered.responses))
		return ctx.Err() == nil && retry.wait(ctx)
	}
	p.metrics.MessagesProduced.Add(float64(len(answered.responses)))
	for _, raw := range answered.requests {
		p.commit(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return true
}

// answeredBatch pairs each loadable response with the request it answers,
// in request order.
type answeredBatch struct {
	requests  []domain.RawMessage
	responses []domain.OutputMessage
}

// answer transforms every request concurrently. A request that cannot be
// answered is committed at once so it is never redelivered.
func (p *Pipeline) answer(ctx context.Context, requests []domain.RawMessage) answeredBatch {
	outs := make([]domain.OutputMessage, len(requests))
	errs := make([]error, len(requests))

	g := new(errgroup.Group)
	g.SetLimit(transformConcurrency)
	for i := range requests {
		g.Go(func() error {
			outs[i], errs[i] = p.transformer.Transform(ctx, requests[i])
			return nil
		})
	}
	_ = g.Wait()

	batch := answeredBatch{
		requests:  make([]domain.RawMessage, 0, len(requests)),
		responses: make([]domain.OutputMessage, 0, len(requests)),
	}
	if ctx.Err() != nil {
		return batch
	}
	for i, raw := range requests {
		if errs[i] != nil {
			p.logger.Warn("request could not be answered, skipping", append(position(raw), "error", errs[i])...)
			p.commit(ctx, raw)
			continue
		}
		batch.requests = append(batch.requests, raw)
		batch.responses = append(batch.responses, outs[i])
	}
	return batch
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", append(position(raw), "error", err)...)
	}
}

func position(raw domain.RawMessage) []any {
	return []any{"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset}
}

// retryDelay is the doubling pause between failed extract or load attempts.
type retryDelay struct {
	next time.Duration
}

func (r *retryDelay) reset() { r.next = minRetryDelay }

// wait sleeps for the current delay and doubles it. It returns false if ctx
// ends first.
func (r *retryDelay) wait(ctx context.Context) bool {
	timer := time.NewTimer(r.next)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	r.next = min(r.next*2, maxRetryDelay)
	return true
}
