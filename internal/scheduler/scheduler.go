package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"papertrader/internal/ports"
)

// Job represents a periodic background job.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// JobFunc adapts a plain function to the Job interface.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

// Name implements Job.
func (j JobFunc) Name() string { return j.JobName }

// Run implements Job.
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// Scheduler drives periodic jobs on a cron schedule. One instance runs the
// alert-evaluation tick; jobs are independent and failures only get logged.
type Scheduler struct {
	cron   *cron.Cron
	logger ports.Logger
}

// New creates a scheduler with second-level granularity.
func New(logger ports.Logger) (*Scheduler, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for scheduler")
	}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}, nil
}

// AddEvery registers a job to run at a fixed interval.
func (s *Scheduler) AddEvery(interval time.Duration, job Job) error {
	return s.Add(fmt.Sprintf("@every %s", interval), job)
}

// Add registers a job with a cron schedule expression
// (e.g. "@every 30s", "0 */5 * * * *").
func (s *Scheduler) Add(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx := context.Background()
		s.logger.Debug(ctx, "Running job", map[string]interface{}{"job": job.Name()})
		if err := job.Run(ctx); err != nil {
			s.logger.Error(ctx, err, "Job failed", map[string]interface{}{"job": job.Name()})
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register job %s with schedule %q: %w", job.Name(), schedule, err)
	}
	s.logger.Info(context.Background(), "Job registered", map[string]interface{}{
		"job":      job.Name(),
		"schedule": schedule,
	})
	return nil
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info(context.Background(), "Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info(context.Background(), "Scheduler stopped")
}
