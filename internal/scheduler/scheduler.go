package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	discountdomain "github.com/smallbiznis/storefront-ledger/internal/discount/domain"
	"github.com/smallbiznis/storefront-ledger/internal/lock"
	"github.com/smallbiznis/storefront-ledger/internal/observability/metrics"
	"github.com/smallbiznis/storefront-ledger/internal/period"
	"github.com/smallbiznis/storefront-ledger/internal/scheduler/guard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobDiscountDecay = "discount_decay"

	decayLockKey = "storefront-ledger:scheduler:discount_decay"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Ledger   *config.LedgerConfigHolder
	Discount discountdomain.Service
	Locker   *lock.Locker `optional:"true"`
	GenID    *snowflake.Node
	Config   Config `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	ledger   *config.LedgerConfigHolder
	discount discountdomain.Service
	locker   *lock.Locker

	mu              sync.Mutex
	completedPeriod string
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Ledger == nil || p.Discount == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		ledger:   p.Ledger,
		discount: p.Discount,
		locker:   p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	schedMetrics := metrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.AddErrors(1)
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name, err)
	// a timed-out sweep resumes from its period markers on the next tick
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.String("run_id", run.runID),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobDiscountDecay, s.isJobEnabled(JobDiscountDecay), func(ctx context.Context) error {
			return s.runJob(ctx, JobDiscountDecay, s.cfg.BatchSize, s.cfg.DecayTimeout, s.DiscountDecayJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := metrics.Scheduler()

	for {
		if runLag := time.Since(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// an empty list enables every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// DiscountDecayJob runs the monthly tier decay once per calendar month. Ticks
// after a clean sweep of the current month are skipped without touching the
// database; a sweep with failures is retried on the next tick.
func (s *Scheduler) DiscountDecayJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobDiscountDecay, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := metrics.Scheduler()

	ledger := s.ledger.Get()
	current := period.MonthOf(s.clock.Now(), ledger.Location()).Key
	if err := guard.EnsureDecayDue(s.lastCompletedPeriod(), current); err != nil {
		schedMetrics.IncJobSkipped(JobDiscountDecay, "period_completed")
		return nil
	}

	token, acquired, err := s.locker.TryLock(ctx, decayLockKey, s.cfg.LockTTL)
	if err != nil {
		s.logJobError(ctx, run, "scheduler.lock.failed", err)
		return err
	}
	if !acquired {
		schedMetrics.IncJobSkipped(JobDiscountDecay, "lock_held")
		s.logger(ctx).Debug("discount decay running elsewhere", zap.String("period", current))
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), decayLockKey, token); err != nil {
			s.log.Warn("release decay lock", zap.Error(err))
		}
	}()

	report, err := s.discount.MonthlyDecay(ctx)
	if report != nil {
		run.AddProcessed(report.Checked)
		schedMetrics.AddBatchProcessed(JobDiscountDecay, "user_discounts", report.Checked)
	}
	if err != nil {
		return err
	}

	s.logDecayReport(ctx, run, report)
	if report.Failed == 0 {
		s.markCompleted(report.Period)
	}
	return nil
}

func (s *Scheduler) lastCompletedPeriod() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedPeriod
}

func (s *Scheduler) markCompleted(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedPeriod = key
}
