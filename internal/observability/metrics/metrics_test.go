package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyErrorReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, ReasonDeadlineExceeded},
		{"wrapped deadline", fmt.Errorf("decay: %w", context.DeadlineExceeded), ReasonDeadlineExceeded},
		{"db_lock_timeout", &pgconn.PgError{Code: "55P03"}, ReasonDBLockTimeout},
		{"serialization_failure", &pgconn.PgError{Code: "40001"}, ReasonSerializationFailure},
		{"unique_violation", gorm.ErrDuplicatedKey, ReasonUniqueViolation},
		{"pg unique_violation", &pgconn.PgError{Code: "23505"}, ReasonUniqueViolation},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, ReasonDB},
		{"unknown", errors.New("boom"), ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyErrorReason(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsRetryable(gorm.ErrDuplicatedKey))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestSchedulerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "storefront-ledger", Environment: "test"})

	m.IncJobRun("discount_decay")
	m.AddBatchProcessed("discount_decay", "user_discounts", 3)
	m.IncJobError("discount_decay", context.DeadlineExceeded)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("discount_decay")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.batchProcessed.WithLabelValues("discount_decay", "user_discounts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobTimeouts.WithLabelValues("discount_decay")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobErrors.WithLabelValues("discount_decay", ReasonDeadlineExceeded)))
}

func TestLedgerMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newLedgerMetrics(registry, Config{Environment: "test"})
	second := newLedgerMetrics(registry, Config{Environment: "test"})

	first.IncCommissionCredit("1", 8)
	second.IncCommissionCredit("1", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.commissionCredits.WithLabelValues("1")))
	assert.Equal(t, 10.0, testutil.ToFloat64(second.commissionAmount))
}
