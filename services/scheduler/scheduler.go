// Package scheduler runs the periodic jobs of the school.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/services/metrics"
)

// Job is a named periodic task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron specs, each run gets its own timeout.
type Scheduler struct {
	cron    *cron.Cron
	logger  core.Logger
	timeout time.Duration
}

func New(logger core.Logger, timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		timeout: timeout,
	}
}

// Add schedules job on spec (standard 5 fields cron spec or descriptor like @daily).
func (s *Scheduler) Add(spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunNow(job) }); err != nil {
		return errors.Wrapf(err, "scheduling %s on %q", job.Name(), spec)
	}
	return nil
}

// RunNow runs job once, synchronously.
func (s *Scheduler) RunNow(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	metrics.RecordJobRun(job.Name(), time.Since(start), err == nil)
	if err != nil {
		s.logger.Error(fmt.Sprintf("job %s failed", job.Name()), err)
		return
	}
	s.logger.Debug(fmt.Sprintf("job %s done in %s", job.Name(), time.Since(start)))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling jobs and waits for the running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
