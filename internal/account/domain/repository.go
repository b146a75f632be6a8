package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Account, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []uuid.UUID) ([]Account, error)
	FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*Account, error)
	// IncrementBalance adds amount to the running bonus balance in a single statement.
	IncrementBalance(ctx context.Context, db *gorm.DB, id uuid.UUID, amount decimal.Decimal, now time.Time) error
	// DecrementBalance subtracts amount unconditionally; the balance may go negative.
	DecrementBalance(ctx context.Context, db *gorm.DB, id uuid.UUID, amount decimal.Decimal, now time.Time) error
	// DecrementBalanceIfSufficient subtracts amount only when the balance covers it.
	DecrementBalanceIfSufficient(ctx context.Context, db *gorm.DB, id uuid.UUID, amount decimal.Decimal, now time.Time) (bool, error)
}
