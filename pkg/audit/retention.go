package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stagepass/stagepass/pkg/observability"
)

// RetentionSweeper deletes audit entries older than the retention window
// on a cron schedule.
type RetentionSweeper struct {
	recorder  Recorder
	retention time.Duration
	logger    *observability.Logger
	cron      *cron.Cron
}

// NewRetentionSweeper creates a sweeper that purges entries older than
// retention. Schedule is a standard cron expression.
func NewRetentionSweeper(recorder Recorder, retention time.Duration, schedule string, logger *observability.Logger) (*RetentionSweeper, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}

	s := &RetentionSweeper{
		recorder:  recorder,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduled sweeps.
func (s *RetentionSweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *RetentionSweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *RetentionSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.retention)
	purged, err := s.recorder.Purge(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("audit retention sweep failed")
		return
	}
	if purged > 0 {
		s.logger.WithFields(map[string]interface{}{
			"purged": purged,
			"cutoff": cutoff.Format(time.RFC3339),
		}).Info("audit retention sweep complete")
	}
}

// SweepNow runs one purge immediately, outside the schedule.
func (s *RetentionSweeper) SweepNow(ctx context.Context) (int64, error) {
	return s.recorder.Purge(ctx, time.Now().UTC().Add(-s.retention))
}
