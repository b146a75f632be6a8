package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	discountdomain "github.com/smallbiznis/storefront-ledger/internal/discount/domain"
	"github.com/smallbiznis/storefront-ledger/internal/observability/metrics"
	"github.com/smallbiznis/storefront-ledger/internal/period"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDiscount struct {
	discountdomain.Service

	clock  clock.Clock
	calls  int
	failed int
	err    error
}

func (f *fakeDiscount) MonthlyDecay(ctx context.Context) (*discountdomain.DecayReport, error) {
	f.calls++
	loc := config.DefaultLedgerConfig().Location()
	report := &discountdomain.DecayReport{
		Period:  period.MonthOf(f.clock.Now(), loc).Key,
		Checked: 3,
		Decayed: 1,
		Failed:  f.failed,
	}
	return report, f.err
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *fakeDiscount, *clock.FakeClock) {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))
	discount := &fakeDiscount{clock: clk}
	sched, err := New(Params{
		Log:      zap.NewNop(),
		Clock:    clk,
		Ledger:   config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig()),
		Discount: discount,
		GenID:    node,
		Config:   cfg,
	})
	require.NoError(t, err)
	return sched, discount, clk
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDiscountDecayRunsOncePerMonth(t *testing.T) {
	sched, discount, clk := newTestScheduler(t, Config{})
	ctx := context.Background()

	require.NoError(t, sched.RunOnce(ctx))
	require.NoError(t, sched.RunOnce(ctx))
	assert.Equal(t, 1, discount.calls)

	// 2025-03-31 21:00 UTC is already April in Moscow
	clk.Set(time.Date(2025, time.March, 31, 21, 0, 0, 0, time.UTC))
	require.NoError(t, sched.RunOnce(ctx))
	assert.Equal(t, 2, discount.calls)
	assert.Equal(t, "2025-04", sched.lastCompletedPeriod())
}

func TestDiscountDecayRetriesAfterFailures(t *testing.T) {
	sched, discount, _ := newTestScheduler(t, Config{})
	ctx := context.Background()

	discount.failed = 1
	require.NoError(t, sched.RunOnce(ctx))
	require.NoError(t, sched.RunOnce(ctx))
	assert.Equal(t, 2, discount.calls)
	assert.Empty(t, sched.lastCompletedPeriod())

	discount.failed = 0
	require.NoError(t, sched.RunOnce(ctx))
	require.NoError(t, sched.RunOnce(ctx))
	assert.Equal(t, 3, discount.calls)
}

func TestRunOnceWrapsJobErrors(t *testing.T) {
	sched, discount, _ := newTestScheduler(t, Config{})
	discount.err = errors.New("database unavailable")

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobDiscountDecay)
	assert.Empty(t, sched.lastCompletedPeriod())
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	sched, discount, _ := newTestScheduler(t, Config{EnabledJobs: []string{"something_else"}})

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Zero(t, discount.calls)

	sched, discount, _ = newTestScheduler(t, Config{EnabledJobs: []string{"DISCOUNT_DECAY"}})
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, discount.calls)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	metrics.ResetSchedulerMetricsForTest()
	metrics.SchedulerWithConfig(metrics.Config{
		ServiceName: "storefront-ledger",
		Environment: "test",
	})

	sched, _, _ := newTestScheduler(t, Config{})
	err := sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "storefront-ledger",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "ledger_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "storefront-ledger",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  metrics.ReasonDeadlineExceeded,
	}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "ledger_scheduler_job_errors_total", errorLabels))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		metrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
