package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront-ledger/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const accountColumns = `id, full_name, referral_code, payment_details, role, bonus_balance, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Account, error) {
	var accounts []domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`,
		id,
	).Scan(&accounts).Error
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []uuid.UUID) ([]domain.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var accounts []domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE id IN ?`,
		ids,
	).Scan(&accounts).Error
	return accounts, err
}

func (r *repo) FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.Account, error) {
	var accounts []domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE referral_code = ?`,
		code,
	).Scan(&accounts).Error
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

func (r *repo) IncrementBalance(ctx context.Context, db *gorm.DB, id uuid.UUID, amount decimal.Decimal, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts SET bonus_balance = bonus_balance + ?, updated_at = ? WHERE id = ?`,
		amount, now, id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) DecrementBalance(ctx context.Context, db *gorm.DB, id uuid.UUID, amount decimal.Decimal, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts SET bonus_balance = bonus_balance - ?, updated_at = ? WHERE id = ?`,
		amount, now, id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) DecrementBalanceIfSufficient(ctx context.Context, db *gorm.DB, id uuid.UUID, amount decimal.Decimal, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts SET bonus_balance = bonus_balance - ?, updated_at = ?
		 WHERE id = ? AND bonus_balance >= ?`,
		amount, now, id, amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
