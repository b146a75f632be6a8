package scheduler

import (
	"context"
	"time"

	discountdomain "github.com/smallbiznis/storefront-ledger/internal/discount/domain"
	"github.com/smallbiznis/storefront-ledger/internal/observability/metrics"
	"github.com/smallbiznis/storefront-ledger/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

type jobRun struct {
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount += count
}

func (r *jobRun) AddErrors(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.errorCount += count
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: time.Now(),
	}
	return context.WithValue(ctx, jobRunKey{}, run), run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return ctxlogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logJobError(ctx context.Context, run *jobRun, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	base := []zap.Field{
		zap.String("error_type", metrics.ClassifyErrorReason(err)),
		zap.Bool("retryable", metrics.IsRetryable(err)),
		zap.Error(err),
	}
	if run != nil {
		run.AddErrors(1)
		base = append(base, zap.String("job", run.job), zap.String("run_id", run.runID))
	}
	s.logger(ctx).Error(msg, append(base, fields...)...)
}

// logDecayReport records the sweep outcome; failed users count as run errors.
func (s *Scheduler) logDecayReport(ctx context.Context, run *jobRun, report *discountdomain.DecayReport) {
	fields := []zap.Field{
		zap.String("period", report.Period),
		zap.Int("checked", report.Checked),
		zap.Int("decayed", report.Decayed),
		zap.Int("failed", report.Failed),
	}
	if report.Failed > 0 {
		run.AddErrors(report.Failed)
		s.logger(ctx).Warn("discount.decay.incomplete", fields...)
		return
	}
	s.logger(ctx).Info("discount.decay.completed", fields...)
}
