package jobs

import (
	"context"
	"fmt"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/logger"
	"github.com/spendsense/spendsense/internal/pipeline"
)

// RefreshHandler returns a JobHandler that reruns the recommendation pipeline
// for the job's user and persists the results. A job with an empty TimeWindow
// refreshes every supported window.
func RefreshHandler(runner *pipeline.Runner) JobHandler {
	return func(ctx context.Context, job Job) error {
		refresh, ok := job.(*RefreshSignalsJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		var windows []domain.TimeWindow
		if refresh.TimeWindow != "" {
			windows = append(windows, refresh.TimeWindow)
		}

		report, err := runner.RunUsers(ctx, []string{refresh.UserID}, windows...)
		if err != nil {
			return fmt.Errorf("refresh signals for user %s: %w", refresh.UserID, err)
		}

		log := logger.FromContext(ctx)
		log.Info().
			Str("job_id", refresh.JobID).
			Str("user_id", refresh.UserID).
			Int("signals_written", report.SignalsWritten).
			Int("recommendations_written", report.RecommendationsWritten).
			Msg("signal refresh completed")

		return nil
	}
}
