package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	accountrepository "github.com/smallbiznis/storefront-ledger/internal/account/repository"
	"github.com/smallbiznis/storefront-ledger/internal/bonus/repository"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/ledgertest"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db := ledgertest.NewDB(t)
	clk := clock.NewFakeClock(baseTime)
	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clk,
		Repo:        repository.Provide(),
		AccountRepo: accountrepository.Provide(),
	}).(*Service)
	return svc, db, clk
}

func TestAvailableBalanceHonoursMaturityRevertsAndReservations(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	users, nodes := ledgertest.CreateChain(t, db, 2, baseTime.AddDate(0, -3, 0))
	referrer, referral := nodes[0], nodes[1]

	ledgertest.CreateBonus(t, db, referrer, referral, nil, 1, "300.00", baseTime.AddDate(0, 0, -45))
	ledgertest.CreateBonus(t, db, referrer, referral, nil, 1, "200.00", baseTime.AddDate(0, 0, -30))
	// too young
	ledgertest.CreateBonus(t, db, referrer, referral, nil, 1, "150.00", baseTime.AddDate(0, 0, -29))
	reverted := ledgertest.CreateBonus(t, db, referrer, referral, nil, 1, "1000.00", baseTime.AddDate(0, 0, -60))
	require.NoError(t, db.Exec(`UPDATE referral_bonuses SET reverted_at = ? WHERE id = ?`, baseTime, reverted).Error)

	ledgertest.CreatePayout(t, db, users[0], referrer, "100.00", "PENDING", baseTime)
	ledgertest.CreatePayout(t, db, users[0], referrer, "50.00", "APPROVED", baseTime)
	ledgertest.CreatePayout(t, db, users[0], referrer, "70.00", "REJECTED", baseTime)

	available, err := svc.AvailableBalance(ctx, referrer, 30)
	require.NoError(t, err)
	assert.Equal(t, "400", available.String())

	available, err = svc.AvailableBalance(ctx, referrer, 0)
	require.NoError(t, err)
	assert.Equal(t, "550", available.String())

	_, err = svc.AvailableBalance(ctx, referrer, -1)
	assert.Error(t, err)
}

func TestAvailableBalanceIgnoresApprovedPayouts(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	users, nodes := ledgertest.CreateChain(t, db, 2, baseTime.AddDate(0, -3, 0))
	ledgertest.CreateBonus(t, db, nodes[0], nodes[1], nil, 1, "1500.00", baseTime.AddDate(0, -2, 0))
	ledgertest.CreatePayout(t, db, users[0], nodes[0], "1000.00", "APPROVED", baseTime.AddDate(0, 0, -10))

	available, err := svc.AvailableBalance(ctx, nodes[0], 30)
	require.NoError(t, err)
	assert.True(t, available.Equal(ledgertest.Dec("1500")), available.String())
}

func TestAvailableBalanceExcludesRequest(t *testing.T) {
	svc, db, clk := newTestService(t)
	ctx := context.Background()

	users, nodes := ledgertest.CreateChain(t, db, 2, baseTime)
	ledgertest.CreateBonus(t, db, nodes[0], nodes[1], nil, 1, "400.00", baseTime.AddDate(0, -2, 0))
	pending := ledgertest.CreatePayout(t, db, users[0], nodes[0], "250.00", "PENDING", baseTime)

	available, err := AvailableBalance(ctx, db, svc.repo, nodes[0], clk.Now(), 30, &pending)
	require.NoError(t, err)
	assert.Equal(t, "400", available.String())
}

func TestRevertForOrderIsIdempotent(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	users, nodes := ledgertest.CreateChain(t, db, 3, baseTime)
	buyer := nodes[2]
	orderID := ledgertest.CreateOrder(t, db, users[2], "cancelled", "1000.00", baseTime)
	otherOrder := ledgertest.CreateOrder(t, db, users[2], "paid", "500.00", baseTime)

	ledgertest.CreateBonus(t, db, nodes[1], buyer, &orderID, 1, "80.00", baseTime)
	ledgertest.CreateBonus(t, db, nodes[0], buyer, &orderID, 2, "50.00", baseTime)
	ledgertest.CreateBonus(t, db, nodes[1], buyer, &otherOrder, 1, "40.00", baseTime)
	require.NoError(t, db.Exec(`UPDATE accounts SET bonus_balance = 120 WHERE id = ?`, users[1]).Error)
	require.NoError(t, db.Exec(`UPDATE accounts SET bonus_balance = 50 WHERE id = ?`, users[0]).Error)

	count, err := svc.RevertForOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = svc.RevertForOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.Equal(t, int64(2), ledgertest.Count(t, db,
		`SELECT COUNT(1) FROM referral_bonuses WHERE order_id = ? AND reverted_at IS NOT NULL`, orderID))
	assert.Equal(t, int64(0), ledgertest.Count(t, db,
		`SELECT COUNT(1) FROM referral_bonuses WHERE order_id = ? AND reverted_at IS NOT NULL`, otherOrder))
	assert.True(t, ledgertest.Balance(t, db, users[1]).Equal(ledgertest.Dec("40")))
	assert.True(t, ledgertest.Balance(t, db, users[0]).IsZero())

	total, err := svc.TotalForReferrer(ctx, nodes[1])
	require.NoError(t, err)
	assert.Equal(t, "40", total.String())

	total, err = svc.TotalForReferral(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, "40", total.String())
}

func TestRevertForUnknownOrderIsNoop(t *testing.T) {
	svc, _, _ := newTestService(t)

	count, err := svc.RevertForOrder(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListForReferrer(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	_, nodes := ledgertest.CreateChain(t, db, 2, baseTime)
	for i := 0; i < 3; i++ {
		ledgertest.CreateBonus(t, db, nodes[0], nodes[1], nil, 1, "10.00", baseTime.Add(time.Duration(i)*time.Hour))
	}

	statement, err := svc.ListForReferrer(ctx, nodes[0], pagination.Pagination{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, statement.Items, 2)
	assert.Equal(t, int64(3), statement.PageInfo.Total)
	assert.True(t, statement.PageInfo.HasMore)
	assert.True(t, statement.Items[0].CreatedAt.After(statement.Items[1].CreatedAt))

	statement, err = svc.ListForReferrer(ctx, nodes[1], pagination.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, statement.Items)
}
