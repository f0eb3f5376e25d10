package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)

type fakeChecker struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (f *fakeChecker) CheckEvent(_ context.Context, beachID string, instant time.Time) (domain.EventCheck, error) {
	f.mu.Lock()
	f.calls = append(f.calls, beachID)
	f.mu.Unlock()

	switch {
	case beachID == f.failOn:
		return domain.EventCheck{}, errors.New("weather service down")
	case instant.After(now.Add(7 * 24 * time.Hour)):
		return domain.EventCheck{Action: domain.ActionNone}, nil
	default:
		return domain.EventCheck{Action: domain.ActionNotify, Title: "Beach forecast for " + beachID, Message: "Sunny."}, nil
	}
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func writeWatches(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watches.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const watches = `[
	{"beach_id": "VA001", "time": "2025-07-05T14:00:00Z", "email": "a@example.com"},
	{"beach_id": "VA002", "time": "2025-07-03T14:00:00Z", "email": "b@example.com"},
	{"beach_id": "NC001", "time": "2025-08-30T14:00:00Z", "email": "c@example.com"}
]`

func newTestScheduler(path string, checker EventChecker, pub Publisher) (*Scheduler, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(path, time.Minute, checker, pub, clockwork.NewFakeClockAt(now), logger, m), m
}

func TestRunOnce_NotifiesCoveredWatches(t *testing.T) {
	checker := &fakeChecker{}
	pub := &fakePublisher{}
	s, m := newTestScheduler(writeWatches(t, watches), checker, pub)

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, []string{"VA001", "NC001"}, checker.calls, "past watches are skipped")
	require.Len(t, pub.sent, 1)
	n := pub.sent[0]
	assert.Equal(t, "VA001", n.BeachID)
	assert.Equal(t, "a@example.com", n.Recipient)
	assert.Equal(t, "Beach forecast for VA001", n.Title)
	assert.True(t, n.EventTime.Equal(time.Date(2025, 7, 5, 14, 0, 0, 0, time.UTC)))
	assert.True(t, n.CreatedAt.Equal(now))
	assert.NotEmpty(t, n.ID)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.WatchChecks.WithLabelValues(domain.ActionNotify)), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.WatchChecks.WithLabelValues(domain.ActionNone)), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.NotificationsProduced), 0)
}

func TestRunOnce_NotifiesOnce(t *testing.T) {
	checker := &fakeChecker{}
	pub := &fakePublisher{}
	s, _ := newTestScheduler(writeWatches(t, watches), checker, pub)

	require.NoError(t, s.RunOnce(context.Background()))
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 1, pub.count())
	assert.Equal(t, []string{"VA001", "NC001", "NC001"}, checker.calls)
}

func TestRunOnce_FailedPublishIsRetried(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	s, m := newTestScheduler(writeWatches(t, watches), &fakeChecker{}, pub)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, testutil.ToFloat64(m.NotificationsProduced))

	pub.err = nil
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, pub.count())
}

func TestRunOnce_CheckErrorDoesNotStopOthers(t *testing.T) {
	content := `[
		{"beach_id": "XX999", "time": "2025-07-05T10:00:00Z", "email": "x@example.com"},
		{"beach_id": "VA001", "time": "2025-07-05T14:00:00Z", "email": "a@example.com"}
	]`
	pub := &fakePublisher{}
	s, m := newTestScheduler(writeWatches(t, content), &fakeChecker{failOn: "XX999"}, pub)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, pub.count())
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.WatchChecks.WithLabelValues("error")), 0)
}

func TestRunOnce_BadWatchFile(t *testing.T) {
	s, _ := newTestScheduler(writeWatches(t, `{"beach_id":"VA001"}`), &fakeChecker{}, &fakePublisher{})
	assert.Error(t, s.RunOnce(context.Background()))

	s, _ = newTestScheduler(filepath.Join(t.TempDir(), "missing.json"), &fakeChecker{}, &fakePublisher{})
	assert.Error(t, s.RunOnce(context.Background()))
}

func TestLoadWatches_Validation(t *testing.T) {
	_, err := LoadWatches(writeWatches(t, `[{"time": "2025-07-05T14:00:00Z"}]`))
	assert.ErrorContains(t, err, "beach_id is required")

	_, err = LoadWatches(writeWatches(t, `[{"beach_id": "VA001"}]`))
	assert.ErrorContains(t, err, "time is required")

	ws, err := LoadWatches(writeWatches(t, `[]`))
	require.NoError(t, err)
	assert.Empty(t, ws)
}

func TestNotificationID_Stable(t *testing.T) {
	w := Watch{BeachID: "VA001", Time: time.Date(2025, 7, 5, 10, 0, 0, 0, time.FixedZone("EDT", -4*3600)), Email: "a@example.com"}
	same := Watch{BeachID: "VA001", Time: time.Date(2025, 7, 5, 14, 0, 0, 0, time.UTC), Email: "a@example.com"}
	other := Watch{BeachID: "VA001", Time: same.Time, Email: "b@example.com"}

	assert.Equal(t, w.notificationID(), same.notificationID())
	assert.NotEqual(t, w.notificationID(), other.notificationID())
}

func TestStart_RunsImmediately(t *testing.T) {
	pub := &fakePublisher{}
	s, _ := newTestScheduler(writeWatches(t, watches), &fakeChecker{}, pub)

	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	assert.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStart_NoWatchFile(t *testing.T) {
	checker := &fakeChecker{}
	s, _ := newTestScheduler("", checker, &fakePublisher{})

	require.NoError(t, s.Start())
	s.Stop()
	assert.Zero(t, checker.callCount())
}
