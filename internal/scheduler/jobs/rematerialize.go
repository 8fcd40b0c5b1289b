package jobs

import (
	"context"
	"time"

	"github.com/vantagefolio/valora/internal/insights"
	"github.com/vantagefolio/valora/pkg/logger"
)

// RematerializeJob rebuilds every active insight's target set nightly.
// Instrument metadata drifts during the day (tag edits, watchlist
// moves, new listings); the sweep folds that drift back into the
// cached targets.
// ⭐ SSOT: 타겟 재계산 스케줄은 이 Job에서만
type RematerializeJob struct {
	materializer *insights.Materializer
	schedule     string
	logger       *logger.Logger
}

// NewRematerializeJob creates a new rematerialization job. The
// schedule comes from config so deployments can dodge their own busy
// windows.
func NewRematerializeJob(materializer *insights.Materializer, schedule string, log *logger.Logger) *RematerializeJob {
	return &RematerializeJob{
		materializer: materializer,
		schedule:     schedule,
		logger:       log,
	}
}

// Name returns the job name
func (j *RematerializeJob) Name() string {
	return "insight_target_rematerialization"
}

// Schedule returns the cron schedule expression
func (j *RematerializeJob) Schedule() string {
	return j.schedule
}

// Run executes the sweep
func (j *RematerializeJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled target rematerialization")

	if err := j.materializer.MaterializeAll(ctx, time.Now().UTC()); err != nil {
		return err
	}

	j.logger.Info("Target rematerialization completed")
	return nil
}
