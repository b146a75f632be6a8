package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	discountdomain "github.com/smallbiznis/storefront-ledger/internal/discount/domain"
	"github.com/smallbiznis/storefront-ledger/internal/discount/repository"
	"github.com/smallbiznis/storefront-ledger/internal/ledgertest"
	orderrepository "github.com/smallbiznis/storefront-ledger/internal/order/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 15:00 in Moscow; the month started at 2025-02-28 21:00 UTC.
var baseTime = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

var lastFebruary = time.Date(2025, time.February, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, batchSize int) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db := ledgertest.NewDB(t)
	clk := clock.NewFakeClock(baseTime)
	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clk,
		Cfg:       config.Config{Scheduler: config.SchedulerConfig{BatchSize: batchSize}},
		Ledger:    config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig()),
		Repo:      repository.Provide(),
		OrderRepo: orderrepository.Provide(),
	}).(*Service)
	return svc, db, clk
}

func seedRecord(t *testing.T, db *gorm.DB, userID uuid.UUID, level discountdomain.Level, checked string) {
	t.Helper()

	var period any
	if checked != "" {
		period = checked
	}
	require.NoError(t, db.Exec(
		`INSERT INTO user_discounts (user_id, current_level, decay_checked_period, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, level, period, baseTime, baseTime,
	).Error)
}

func levelOf(t *testing.T, db *gorm.DB, userID uuid.UUID) discountdomain.Level {
	t.Helper()

	record, err := repository.Provide().Find(context.Background(), db, userID)
	require.NoError(t, err)
	if record == nil {
		return discountdomain.LevelNone
	}
	return record.CurrentLevel
}

func paid(t *testing.T, svc *Service, db *gorm.DB, userID uuid.UUID, total string, at time.Time) {
	t.Helper()

	orderID := ledgertest.CreateOrder(t, db, userID, "paid", total, at)
	require.NoError(t, svc.OnOrderPaid(context.Background(), userID, orderID))
}

func TestOnOrderPaidRaisesTierWithMonthlySpend(t *testing.T) {
	svc, db, _ := newTestService(t, 0)
	ctx := context.Background()
	userID := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})

	// last month's spend does not count
	ledgertest.CreateOrder(t, db, userID, "paid", "40000.00", lastFebruary)

	paid(t, svc, db, userID, "12000.00", baseTime.Add(-time.Hour))
	assert.Equal(t, discountdomain.LevelBronze, levelOf(t, db, userID))

	paid(t, svc, db, userID, "20000.00", baseTime)
	assert.Equal(t, discountdomain.LevelSilver, levelOf(t, db, userID))

	record, err := svc.repo.Find(ctx, db, userID)
	require.NoError(t, err)
	require.NotNil(t, record.LastPurchaseDate)
	assert.Equal(t, "2025-03-10", time.Time(*record.LastPurchaseDate).Format("2006-01-02"))
	assert.True(t, record.CheckedFor("2025-03"))

	progress, err := svc.Progress(ctx, userID)
	require.NoError(t, err)
	assert.True(t, progress.CurrentTotal.Equal(ledgertest.Dec("32000")))
	assert.Equal(t, discountdomain.LevelSilver, progress.CurrentLevel)
	assert.True(t, progress.CurrentPercent.Equal(ledgertest.Dec("7")))
	assert.Equal(t, discountdomain.LevelGold, progress.NextLevel)
	assert.True(t, progress.RequiredTotal.Equal(ledgertest.Dec("50000")))
	assert.True(t, progress.AmountLeft.Equal(ledgertest.Dec("18000")))
	assert.True(t, progress.NextPercent.Equal(ledgertest.Dec("10")))
}

func TestOnOrderPaidNeverLowersWithinMonth(t *testing.T) {
	svc, db, _ := newTestService(t, 0)
	userID := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	seedRecord(t, db, userID, discountdomain.LevelSilver, "2025-03")

	paid(t, svc, db, userID, "12000.00", baseTime)
	assert.Equal(t, discountdomain.LevelSilver, levelOf(t, db, userID))

	refunded := ledgertest.CreateOrder(t, db, userID, "paid", "100.00", baseTime)
	ledgertest.SetOrderStatus(t, db, refunded, "refunded")
	paid(t, svc, db, userID, "1.00", baseTime)
	assert.Equal(t, discountdomain.LevelSilver, levelOf(t, db, userID))
}

func TestOnOrderPaidIgnoresUnqualifiedOrders(t *testing.T) {
	svc, db, _ := newTestService(t, 0)
	ctx := context.Background()
	userID := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	other := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})

	pending := ledgertest.CreateOrder(t, db, userID, "pending", "60000.00", baseTime)
	require.NoError(t, svc.OnOrderPaid(ctx, userID, pending))

	foreign := ledgertest.CreateOrder(t, db, other, "paid", "60000.00", baseTime)
	require.NoError(t, svc.OnOrderPaid(ctx, userID, foreign))

	require.NoError(t, svc.OnOrderPaid(ctx, userID, uuid.New()))

	assert.Equal(t, int64(0), ledgertest.Count(t, db, `SELECT COUNT(1) FROM user_discounts`))
}

func TestOnOrderPaidAppliesPendingDecayFirst(t *testing.T) {
	svc, db, _ := newTestService(t, 0)
	userID := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	seedRecord(t, db, userID, discountdomain.LevelGold, "2025-02")

	paid(t, svc, db, userID, "100.00", baseTime)
	assert.Equal(t, discountdomain.LevelSilver, levelOf(t, db, userID))

	// the month is now checked; the scheduled run leaves the user alone
	report, err := svc.MonthlyDecay(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Equal(t, discountdomain.LevelSilver, levelOf(t, db, userID))
}

func TestMonthlyDecay(t *testing.T) {
	svc, db, clk := newTestService(t, 0)
	ctx := context.Background()

	idle := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	seedRecord(t, db, idle, discountdomain.LevelGold, "")
	bronze := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	seedRecord(t, db, bronze, discountdomain.LevelBronze, "2025-02")
	active := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	seedRecord(t, db, active, discountdomain.LevelSilver, "")
	ledgertest.CreateOrder(t, db, active, "paid", "10.00", lastFebruary)
	cancelled := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	seedRecord(t, db, cancelled, discountdomain.LevelSilver, "")
	ledgertest.CreateOrder(t, db, cancelled, "cancelled", "10.00", lastFebruary)
	none := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	seedRecord(t, db, none, discountdomain.LevelNone, "")
	done := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	seedRecord(t, db, done, discountdomain.LevelGold, "2025-03")

	report, err := svc.MonthlyDecay(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-03", report.Period)
	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 3, report.Decayed)
	assert.Zero(t, report.Failed)

	assert.Equal(t, discountdomain.LevelSilver, levelOf(t, db, idle))
	assert.Equal(t, discountdomain.LevelNone, levelOf(t, db, bronze))
	assert.Equal(t, discountdomain.LevelSilver, levelOf(t, db, active))
	assert.Equal(t, discountdomain.LevelBronze, levelOf(t, db, cancelled))
	assert.Equal(t, discountdomain.LevelNone, levelOf(t, db, none))
	assert.Equal(t, discountdomain.LevelGold, levelOf(t, db, done))

	// a second run in the same month changes nothing
	report, err = svc.MonthlyDecay(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Equal(t, discountdomain.LevelSilver, levelOf(t, db, idle))

	// one more rank the following month
	clk.Set(time.Date(2025, time.April, 1, 0, 5, 0, 0, time.UTC))
	report, err = svc.MonthlyDecay(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-04", report.Period)
	assert.Equal(t, discountdomain.LevelBronze, levelOf(t, db, idle))
	assert.Equal(t, discountdomain.LevelSilver, levelOf(t, db, done))
	assert.Equal(t, discountdomain.LevelNone, levelOf(t, db, bronze))
}

func TestMonthlyDecayPagesThroughCandidates(t *testing.T) {
	svc, db, _ := newTestService(t, 2)

	users := make([]uuid.UUID, 5)
	for i := range users {
		users[i] = ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
		seedRecord(t, db, users[i], discountdomain.LevelSilver, "")
	}

	report, err := svc.MonthlyDecay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Checked)
	assert.Equal(t, 5, report.Decayed)
	for _, userID := range users {
		assert.Equal(t, discountdomain.LevelBronze, levelOf(t, db, userID))
	}
}

func TestMonthlyDecayHonoursCancellation(t *testing.T) {
	svc, db, _ := newTestService(t, 0)
	userID := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	seedRecord(t, db, userID, discountdomain.LevelGold, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.MonthlyDecay(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, discountdomain.LevelGold, levelOf(t, db, userID))
}

func TestSpendThenIdleMonthDropsBronzeToNone(t *testing.T) {
	svc, db, clk := newTestService(t, 0)
	userID := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})

	paid(t, svc, db, userID, "12000.00", baseTime)
	assert.Equal(t, discountdomain.LevelBronze, levelOf(t, db, userID))

	// April: March had a purchase, so no decay
	clk.Set(time.Date(2025, time.March, 31, 21, 0, 0, 0, time.UTC))
	_, err := svc.MonthlyDecay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, discountdomain.LevelBronze, levelOf(t, db, userID))

	// May: April was idle
	clk.Set(time.Date(2025, time.April, 30, 21, 0, 0, 0, time.UTC))
	_, err = svc.MonthlyDecay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, discountdomain.LevelNone, levelOf(t, db, userID))
}

func TestMultiplierAndProgressAtTop(t *testing.T) {
	svc, db, _ := newTestService(t, 0)
	ctx := context.Background()

	gold := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	seedRecord(t, db, gold, discountdomain.LevelGold, "2025-03")

	multiplier, err := svc.Multiplier(ctx, gold)
	require.NoError(t, err)
	assert.Equal(t, "0.9", multiplier.String())

	progress, err := svc.Progress(ctx, gold)
	require.NoError(t, err)
	assert.Equal(t, discountdomain.LevelGold, progress.NextLevel)
	assert.True(t, progress.AmountLeft.IsZero())
	assert.True(t, progress.NextPercent.Equal(progress.CurrentPercent))

	stranger := uuid.New()
	multiplier, err = svc.Multiplier(ctx, stranger)
	require.NoError(t, err)
	assert.Equal(t, "1", multiplier.String())

	progress, err = svc.Progress(ctx, stranger)
	require.NoError(t, err)
	assert.Equal(t, discountdomain.LevelNone, progress.CurrentLevel)
	assert.Equal(t, discountdomain.LevelBronze, progress.NextLevel)
	assert.True(t, progress.AmountLeft.Equal(ledgertest.Dec("10000")))
}
