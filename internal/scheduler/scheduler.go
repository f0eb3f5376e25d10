// Package scheduler periodically evaluates configured beach visits and
// publishes a notification for each one the forecast now covers.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/observability"
	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"
)

// EventChecker evaluates a planned visit.
type EventChecker interface {
	CheckEvent(ctx context.Context, beachID string, instant time.Time) (domain.EventCheck, error)
}

// Publisher delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
}

// Scheduler runs the watch evaluation job.
type Scheduler struct {
	scheduler *gocron.Scheduler
	checker   EventChecker
	publisher Publisher
	path      string
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu       sync.Mutex
	notified map[string]bool
}

// New creates a Scheduler that re-reads the watch file at path on every run.
func New(path string, interval time.Duration, checker EventChecker, publisher Publisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		checker:   checker,
		publisher: publisher,
		path:      path,
		interval:  interval,
		clock:     clock,
		logger:    logger.With("component", "scheduler"),
		metrics:   metrics,
		notified:  make(map[string]bool),
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if s.path == "" {
		s.logger.Info("no watch file configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(minutes)*time.Minute)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("watch run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("watch scheduler started", "path", s.path, "interval_minutes", minutes)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// RunOnce evaluates every pending watch. A watch whose time has passed or
// that was already notified is skipped. One watch failing does not stop the
// others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	watches, err := LoadWatches(s.path)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	checked, sent := 0, 0
	for _, w := range watches {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		id := w.notificationID()
		if w.Time.Before(now) || s.wasNotified(id) {
			continue
		}
		checked++
		if s.evaluate(ctx, w, id, now) {
			sent++
		}
	}

	s.logger.Info("watch run complete", "watches", len(watches), "checked", checked, "notified", sent)
	return nil
}

func (s *Scheduler) evaluate(ctx context.Context, w Watch, id string, now time.Time) bool {
	check, err := s.checker.CheckEvent(ctx, w.BeachID, w.Time)
	if err != nil {
		s.metrics.WatchChecks.WithLabelValues("error").Inc()
		s.logger.Warn("watch check failed", "beach_id", w.BeachID, "time", w.Time, "error", err)
		return false
	}
	s.metrics.WatchChecks.WithLabelValues(check.Action).Inc()
	if check.Action != domain.ActionNotify {
		return false
	}

	n := domain.Notification{
		ID:        id,
		BeachID:   w.BeachID,
		Recipient: w.Email,
		Title:     check.Title,
		Message:   check.Message,
		EventTime: w.Time,
		CreatedAt: now,
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		s.logger.Error("publish notification failed", "beach_id", w.BeachID, "notification_id", id, "error", err)
		return false
	}

	s.metrics.NotificationsProduced.Inc()
	s.mu.Lock()
	s.notified[id] = true
	s.mu.Unlock()
	return true
}

func (s *Scheduler) wasNotified(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notified[id]
}
