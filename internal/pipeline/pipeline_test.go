package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/dispatch"
	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/observability"
	"github.com/couchcryptid/beach-query-service/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawMessage
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawMessage, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockTransformer struct{}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawMessage) (domain.OutputMessage, error) {
	if string(raw.Value) == "poison" {
		return domain.OutputMessage{}, errors.New("cannot answer")
	}
	if string(raw.Key) == "slow" {
		time.Sleep(20 * time.Millisecond)
	}
	return domain.OutputMessage{Key: raw.Key, Value: raw.Value}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.OutputMessage
	err    error
}

func (m *mockLoader) LoadBatch(_ context.Context, out []domain.OutputMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, out...)
	return nil
}

func (m *mockLoader) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, len(m.loaded))
	for i, o := range m.loaded {
		keys[i] = string(o.Key)
	}
	return keys
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawMessage(key, value string, commits *atomic.Int32) domain.RawMessage {
	raw := domain.RawMessage{Key: []byte(key), Value: []byte(value), Topic: "beach-query-requests"}
	if commits != nil {
		raw.Commit = func(_ context.Context) error {
			commits.Add(1)
			return nil
		}
	}
	return raw
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var commits atomic.Int32
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		rawMessage("a", `{"request_type":"x"}`, &commits),
		rawMessage("b", `{"request_type":"y"}`, &commits),
	}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, 10)
	require.Error(t, p.CheckReadiness(context.Background()))

	runFor(t, p, 300*time.Millisecond)

	assert.Equal(t, []string{"a", "b"}, ldr.keys())
	assert.Equal(t, int32(2), commits.Load())
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.MessagesConsumed), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.MessagesProduced), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_KeepsRequestOrder(t *testing.T) {
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		rawMessage("slow", "1", nil),
		rawMessage("fast-1", "2", nil),
		rawMessage("fast-2", "3", nil),
	}}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)
	runFor(t, p, 300*time.Millisecond)

	if diff := cmp.Diff([]string{"slow", "fast-1", "fast-2"}, ldr.keys()); diff != "" {
		t.Fatalf("load order mismatch (-want +got):\n%s", diff)
	}
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, will block
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
}

func TestPipeline_Run_TransformErrorSkipsAndCommits(t *testing.T) {
	var commits atomic.Int32
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		rawMessage("bad", "poison", &commits),
	}}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)
	runFor(t, p, 300*time.Millisecond)

	assert.Empty(t, ldr.loaded)
	assert.Equal(t, int32(1), commits.Load())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_LoadFailureDoesNotCommit(t *testing.T) {
	var commits atomic.Int32
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		rawMessage("a", "1", &commits),
	}}}
	ldr := &mockLoader{err: errors.New("broker unavailable")}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)
	runFor(t, p, 300*time.Millisecond)

	assert.Zero(t, commits.Load())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

// --- RequestTransformer ---

type fakeHandler struct {
	resp dispatch.Response
	seen []byte
}

func (f *fakeHandler) Handle(_ context.Context, raw []byte) dispatch.Response {
	f.seen = raw
	return f.resp
}

func TestRequestTransformer_Transform(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 4, 16, 0, 0, 0, time.UTC))
	h := &fakeHandler{resp: dispatch.Response{
		RequestID:   "req-1",
		RequestType: dispatch.RequestBeachInfo,
		Code:        dispatch.RequestBeachInfo,
		Body:        []byte(`{"code":"get_beach_info_by_id"}`),
	}}
	tfm := pipeline.NewTransformer(h, clock, discardLogger())

	raw := rawMessage("", `{"request_type":"get_beach_info_by_id"}`, nil)
	raw.Headers = map[string]string{"reply_to": "web-7", "ignored": "x"}

	out, err := tfm.Transform(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, raw.Value, h.seen)
	assert.Equal(t, []byte("req-1"), out.Key)
	assert.Equal(t, h.resp.Body, out.Value)
	want := map[string]string{
		"request_id":   "req-1",
		"request_type": dispatch.RequestBeachInfo,
		"code":         dispatch.RequestBeachInfo,
		"processed_at": "2025-07-04T16:00:00Z",
		"reply_to":     "web-7",
	}
	if diff := cmp.Diff(want, out.Headers); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestTransformer_ErrorResponse(t *testing.T) {
	h := &fakeHandler{resp: dispatch.Response{
		RequestID: "req-2",
		Code:      domain.CodeError,
		ErrorType: domain.ErrorTypeMissingRequestType,
		Body:      []byte(`{"code":"ERROR"}`),
	}}
	tfm := pipeline.NewTransformer(h, clockwork.NewFakeClock(), discardLogger())

	out, err := tfm.Transform(context.Background(), rawMessage("key-9", `{}`, nil))
	require.NoError(t, err)
	assert.Equal(t, []byte("key-9"), out.Key)
	assert.Equal(t, domain.CodeError, out.Headers["code"])
	assert.Equal(t, domain.ErrorTypeMissingRequestType, out.Headers["error_type"])
	assert.NotContains(t, out.Headers, "request_type")
}

func TestRequestTransformer_CancelledContext(t *testing.T) {
	tfm := pipeline.NewTransformer(&fakeHandler{}, clockwork.NewFakeClock(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tfm.Transform(ctx, rawMessage("k", `{}`, nil))
	assert.ErrorIs(t, err, context.Canceled)
}
