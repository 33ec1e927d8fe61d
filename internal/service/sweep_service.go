package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/xdmy1/colete/pkg/errors"
)

type sweepParcelStore interface {
	ArchiveDelivered(ctx context.Context, archivedAt time.Time) (int64, error)
}

// SweepConfig tunes the weekly archive sweep. The default schedule matches
// the end of the delivery week: Sunday 23:59 in the depot timezone.
type SweepConfig struct {
	SchedulerEnabled bool
	Timezone         string
	Weekday          time.Weekday
	Hour             int
	Minute           int
}

// SweepService archives delivered parcels at the end of each week. The sweep
// is a single set-based update, so running it twice in a row archives nothing
// the second time.
type SweepService struct {
	parcels sweepParcelStore
	logger  *zap.Logger
	metrics *MetricsService
	cfg     SweepConfig
	now     func() time.Time
}

// NewSweepService constructs a SweepService.
func NewSweepService(parcels sweepParcelStore, logger *zap.Logger, cfg SweepConfig) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/Chisinau"
	}
	return &SweepService{
		parcels: parcels,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *SweepService) WithClock(now func() time.Time) *SweepService {
	s.now = now
	return s
}

// WithMetrics attaches Prometheus instrumentation.
func (s *SweepService) WithMetrics(metrics *MetricsService) *SweepService {
	s.metrics = metrics
	return s
}

// Run executes the archive sweep immediately and reports how many parcels
// moved. Pending parcels are untouched; they stay on the active board into
// the next week.
func (s *SweepService) Run(ctx context.Context) (int64, time.Time, error) {
	executedAt := s.now()
	archived, err := s.parcels.ArchiveDelivered(ctx, executedAt)
	if err != nil {
		return 0, executedAt, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "archive sweep failed")
	}
	s.metrics.RecordArchiveSweep(archived)
	s.logger.Info("archive sweep completed",
		zap.Int64("archived", archived),
		zap.Time("executedAt", executedAt))
	return archived, executedAt, nil
}

// StartScheduler boots the weekly trigger goroutine. It fires at the
// configured weekday and wall time in the configured timezone and survives
// failed runs by simply waiting for the next occurrence.
func (s *SweepService) StartScheduler(ctx context.Context) {
	if !s.cfg.SchedulerEnabled {
		return
	}
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		s.logger.Warn("invalid sweep timezone, falling back to UTC",
			zap.String("timezone", s.cfg.Timezone), zap.Error(err))
		loc = time.UTC
	}
	go func() {
		for {
			next := s.nextRun(s.now().In(loc))
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if _, _, err := s.Run(ctx); err != nil {
					s.logger.Error("scheduled archive sweep failed", zap.Error(err))
				}
			}
		}
	}()
	s.logger.Info("archive sweep scheduler started",
		zap.String("timezone", loc.String()),
		zap.String("weekday", s.cfg.Weekday.String()),
		zap.Int("hour", s.cfg.Hour),
		zap.Int("minute", s.cfg.Minute))
}

// nextRun returns the next scheduled instant strictly after now, in now's
// location.
func (s *SweepService) nextRun(now time.Time) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, now.Location())
	daysAhead := (int(s.cfg.Weekday) - int(now.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, daysAhead)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
