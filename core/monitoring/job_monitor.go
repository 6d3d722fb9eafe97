package monitoring

import (
	"context"
	"time"

	"lora-console/core/models"

	"go.uber.org/zap"
)

// API is the subset of the job API the monitor polls
type API interface {
	GetJob(ctx context.Context, jobID int64) (*models.Job, error)
	GetProgress(ctx context.Context, jobID int64) (*models.JobProgress, error)
}

// JobMonitor follows a single job until it reaches a terminal status
type JobMonitor struct {
	api        API
	interval   time.Duration
	stallAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewJobMonitor creates a new job monitor. A running job whose step count
// has not moved for stallAfter is reported as stalled; zero disables this.
func NewJobMonitor(api API, interval, stallAfter time.Duration, logger *zap.Logger) *JobMonitor {
	return &JobMonitor{
		api:        api,
		interval:   interval,
		stallAfter: stallAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// JobMetrics is one observation of a job
type JobMetrics struct {
	JobID        int64              `json:"job_id"`
	Status       models.JobStatus   `json:"status"`
	Progress     models.JobProgress `json:"progress"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	Elapsed      time.Duration      `json:"elapsed"`
	StepsPerHour float64            `json:"steps_per_hour"`
	Stalled      bool               `json:"stalled"`
	ExitCode     *int               `json:"exit_code,omitempty"`
	Error        *string            `json:"error,omitempty"`
}

// Wait polls the job every interval, calling onUpdate with each
// observation, and returns the first observation with a terminal status
func (jm *JobMonitor) Wait(ctx context.Context, jobID int64, onUpdate func(*JobMetrics)) (*JobMetrics, error) {
	ticker := time.NewTicker(jm.interval)
	defer ticker.Stop()

	var (
		lastStep    = -1
		lastAdvance = jm.now()
		warned      bool
	)
	for {
		metrics, err := jm.observe(ctx, jobID)
		if err != nil {
			return nil, err
		}

		now := jm.now()
		if metrics.Progress.CurrentStep != lastStep {
			lastStep = metrics.Progress.CurrentStep
			lastAdvance = now
			warned = false
		}
		if metrics.Status == models.JobStatusRunning && jm.stallAfter > 0 && now.Sub(lastAdvance) >= jm.stallAfter {
			metrics.Stalled = true
			if !warned {
				jm.logger.Warn("job progress stalled",
					zap.Int64("job_id", jobID),
					zap.Int("step", lastStep),
					zap.Duration("since", now.Sub(lastAdvance)),
				)
				warned = true
			}
		}

		if onUpdate != nil {
			onUpdate(metrics)
		}
		if metrics.Status.IsTerminal() {
			jm.logger.Info("job finished",
				zap.Int64("job_id", jobID),
				zap.String("status", string(metrics.Status)),
			)
			return metrics, nil
		}

		select {
		case <-ctx.Done():
			return metrics, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (jm *JobMonitor) observe(ctx context.Context, jobID int64) (*JobMetrics, error) {
	job, err := jm.api.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	progress, err := jm.api.GetProgress(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return buildMetrics(job, progress, jm.now()), nil
}

func buildMetrics(job *models.Job, progress *models.JobProgress, now time.Time) *JobMetrics {
	metrics := &JobMetrics{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  *progress,
		StartedAt: job.StartedAt,
		ExitCode:  job.ExitCode,
		Error:     job.Error,
	}
	if job.StartedAt == nil {
		return metrics
	}
	end := now
	if job.EndedAt != nil {
		end = *job.EndedAt
	}
	metrics.Elapsed = end.Sub(*job.StartedAt)
	if hours := metrics.Elapsed.Hours(); hours > 0 {
		metrics.StepsPerHour = float64(progress.CurrentStep) / hours
	}
	return metrics
}
