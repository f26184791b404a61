package cronrunner

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner schedules the background jobs (resolution sync, attribution).
// Jobs get the runner's base context so shutdown cancels in-flight work,
// and a job still running when its next tick fires is skipped, not stacked.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add schedules a named job. Specs use the 6-field form with seconds, plus
// the @every shortcuts.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	var running atomic.Bool
	return r.cron.AddFunc(spec, func() {
		if !running.CompareAndSwap(false, true) {
			r.logger.Warn("previous run still active, skipping tick", zap.String("job", name))
			return
		}
		defer running.Store(false)
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("job panicked",
					zap.String("job", name),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
			}
		}()

		start := time.Now()
		r.logger.Info("job starting", zap.String("job", name))
		err := job(r.baseCtx)
		took := time.Since(start)
		switch {
		case err == nil:
			r.logger.Info("job finished", zap.String("job", name), zap.Duration("took", took))
		case errors.Is(err, context.Canceled):
			r.logger.Info("job cancelled", zap.String("job", name), zap.Duration("took", took))
		default:
			r.logger.Error("job failed",
				zap.String("job", name),
				zap.Duration("took", took),
				zap.Error(err))
		}
	})
}

func (r *Runner) Start() {
	r.logger.Info("cron started")
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
