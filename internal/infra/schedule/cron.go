// Package schedule runs periodic maintenance jobs on a cron.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrJobIncomplete = errors.New("schedule: job needs a name, spec and function")

// Job is one periodic task. Run gets a context bounded by the runner timeout.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Runner wraps a cron instance. Overlapping runs of a slow job are skipped and
// a panicking job is logged instead of crashing the process.
type Runner struct {
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration
	base    context.Context
}

func NewRunner(logger *slog.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cl := cronLogger{logger: logger.With("component", "cron")}
	return &Runner{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:  logger,
		timeout: timeout,
		base:    context.Background(),
	}
}

func (r *Runner) Add(job Job) error {
	if job.Name == "" || job.Spec == "" || job.Run == nil {
		return ErrJobIncomplete
	}
	_, err := r.cron.AddFunc(job.Spec, func() { r.run(job) })
	return err
}

// Run starts the cron and blocks until ctx ends, then waits for running jobs.
func (r *Runner) Run(ctx context.Context) error {
	r.base = ctx
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
	return nil
}

func (r *Runner) run(job Job) {
	ctx := r.base
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	started := time.Now()
	if err := job.Run(ctx); err != nil {
		r.logger.Error("scheduled job failed", "job", job.Name, "duration", time.Since(started), "err", err)
		return
	}
	r.logger.Debug("scheduled job finished", "job", job.Name, "duration", time.Since(started))
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}

var _ cron.Logger = cronLogger{}
