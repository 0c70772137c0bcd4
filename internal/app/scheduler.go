package service

import (
	"context"
	"time"

	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

func (s *Service) runScheduler(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.schedulerInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs scheduled maintenance once: expired sessions are purged and,
// past the configured time of day, the day's summary is recorded if it has
// not been already.
func (s *Service) Tick(ctx context.Context) {
	now := s.now()

	purged, err := s.store.PurgeSessions(ctx, now)
	if err != nil {
		s.logger.Error(ctx, "purge sessions", logger.Error(err))
	} else if purged > 0 {
		s.logger.Debug(ctx, "expired sessions purged", logger.Int("count", purged))
	}
	if n, err := s.store.CountSessions(ctx, now); err == nil {
		metrics.UpdateActiveSessions(n)
	}

	due := time.Date(now.Year(), now.Month(), now.Day(), s.summaryHour, s.summaryMinute, 0, 0, now.Location())
	if now.Before(due) {
		return
	}
	day := now.Format(dateLayout)

	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()
	if s.lastSummary == day {
		return
	}

	if _, err := s.RecordDailySummary(ctx, now); err != nil {
		s.logger.Error(ctx, "daily summary", logger.Error(err))
		metrics.RecordErrorByComponent("scheduler", "daily_summary")
		return
	}
	s.lastSummary = day
}
