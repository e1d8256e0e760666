// Package cron runs periodic maintenance jobs on a cron schedule
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one recurring task
type Job struct {
	Name     string
	Schedule string // cron expression or @every descriptor
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Runner manages scheduled job execution
type Runner struct {
	cron    *cron.Cron
	jobs    map[string]Job
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
}

// NewRunner creates a runner with no jobs
func NewRunner(logger *zap.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		)),
		jobs:   make(map[string]Job),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job. An invalid schedule is reported immediately.
func (r *Runner) Add(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	if _, err := r.cron.AddFunc(job.Schedule, func() { r.execute(job) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
	}
	r.jobs[job.Name] = job
	return nil
}

// Start starts the scheduler
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}
	r.running = true
	r.cron.Start()
	r.logger.Info("Cron runner started", zap.Int("jobs", len(r.jobs)))
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Cron runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// RunNow executes a registered job synchronously, outside its schedule
func (r *Runner) RunNow(name string) error {
	r.mu.RLock()
	job, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	return r.execute(job)
}

func (r *Runner) execute(job Job) error {
	ctx := r.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		r.logger.Error("Job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	r.logger.Debug("Job completed",
		zap.String("job", job.Name),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
