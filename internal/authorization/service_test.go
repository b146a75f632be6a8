package authorization

import (
	"context"
	"testing"

	"github.com/google/uuid"
	accountrepository "github.com/smallbiznis/storefront-ledger/internal/account/repository"
	"github.com/smallbiznis/storefront-ledger/internal/ledgertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	db := ledgertest.NewDB(t)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	return NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Enforcer:    enforcer,
		AccountRepo: accountrepository.Provide(),
	}), db
}

func TestAuthorizeAdminPayoutActions(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	admin := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{Role: "admin"})
	for _, action := range []string{ActionPayoutView, ActionPayoutApprove, ActionPayoutReject} {
		assert.NoError(t, svc.Authorize(ctx, admin, ObjectPayoutRequest, action), action)
	}
}

func TestAuthorizeDeniesCustomers(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	customer := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	assert.ErrorIs(t, svc.Authorize(ctx, customer, ObjectPayoutRequest, ActionPayoutApprove), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, uuid.New(), ObjectPayoutRequest, ActionPayoutView), ErrForbidden)
}

func TestAuthorizeFollowsRoleChanges(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	userID := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{Role: "admin"})
	require.NoError(t, svc.Authorize(ctx, userID, ObjectPayoutRequest, ActionPayoutApprove))

	require.NoError(t, db.Exec(`UPDATE accounts SET role = 'customer' WHERE id = ?`, userID).Error)
	assert.ErrorIs(t, svc.Authorize(ctx, userID, ObjectPayoutRequest, ActionPayoutApprove), ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, uuid.Nil, ObjectPayoutRequest, ActionPayoutView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, uuid.New(), " ", ActionPayoutView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, uuid.New(), ObjectPayoutRequest, ""), ErrInvalidAction)
}

func TestNewEnforcerIsIdempotent(t *testing.T) {
	db := ledgertest.NewDB(t)
	_, err := NewEnforcer(db)
	require.NoError(t, err)
	_, err = NewEnforcer(db)
	require.NoError(t, err)

	assert.Equal(t, int64(3), ledgertest.Count(t, db, `SELECT COUNT(*) FROM casbin_rule WHERE ptype = 'p'`))
}
