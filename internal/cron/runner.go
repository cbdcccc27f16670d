// Package cronrunner schedules the housekeeping jobs of the wizard service:
// session checkpoints and history pruning.
package cronrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/skybase-int/tarmac-sub003/internal/metrics"
)

// Gate reports whether a job may run now. It is consulted before every run so
// a switch flipped at runtime applies to the next tick.
type Gate func(ctx context.Context) bool

type Job struct {
	Name    string
	Spec    string
	Gate    Gate
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	cl := cronLogger{logger: logger}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add schedules job. An empty spec leaves the job disabled.
func (r *Runner) Add(job Job) (cron.EntryID, error) {
	if job.Spec == "" {
		if r.logger != nil {
			r.logger.Info("cron job disabled", zap.String("job", job.Name))
		}
		return 0, nil
	}
	if job.Run == nil {
		return 0, fmt.Errorf("cron job %s: no run func", job.Name)
	}
	id, err := r.cron.AddFunc(job.Spec, func() { r.run(job) })
	if err != nil {
		return 0, fmt.Errorf("cron job %s: %w", job.Name, err)
	}
	return id, nil
}

func (r *Runner) run(job Job) {
	ctx := r.baseCtx
	if ctx.Err() != nil {
		return
	}
	if job.Gate != nil && !job.Gate(ctx) {
		metrics.IncJobRun(job.Name, "skipped")
		return
	}
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	started := time.Now()
	if err := job.Run(ctx); err != nil {
		metrics.IncJobRun(job.Name, "failed")
		if r.logger != nil {
			r.logger.Warn("cron job failed", zap.String("job", job.Name), zap.Error(err))
		}
		return
	}
	metrics.IncJobRun(job.Name, "ok")
	if r.logger != nil {
		r.logger.Debug("cron job done", zap.String("job", job.Name), zap.Duration("took", time.Since(started)))
	}
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	}
	r.cron.Start()
}

// Stop waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}

// cronLogger adapts zap to the logger the cron job wrappers expect.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Sugar().Debugw(msg, keysAndValues...)
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
	}
}
