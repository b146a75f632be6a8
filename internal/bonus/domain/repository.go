package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	ExistsForOrder(ctx context.Context, db *gorm.DB, orderID uuid.UUID) (bool, error)
	// ListActiveByOrder returns the order's non-reverted entries with the paid user's id.
	ListActiveByOrder(ctx context.Context, db *gorm.DB, orderID uuid.UUID) ([]Entry, error)
	// MarkReverted stamps reverted_at once; it reports false when the entry was already reverted.
	MarkReverted(ctx context.Context, db *gorm.DB, id uuid.UUID, now time.Time) (bool, error)
	SumForReferrer(ctx context.Context, db *gorm.DB, referrerNodeID uuid.UUID) (decimal.Decimal, error)
	SumForReferral(ctx context.Context, db *gorm.DB, referralNodeID uuid.UUID) (decimal.Decimal, error)
	// SumMatured totals non-reverted entries created at or before maturedBefore.
	SumMatured(ctx context.Context, db *gorm.DB, referrerNodeID uuid.UUID, maturedBefore time.Time) (decimal.Decimal, error)
	// SumReserved totals PENDING payout requests, ignoring excludeID when set.
	// Approved amounts already left the running balance and are not held here.
	SumReserved(ctx context.Context, db *gorm.DB, referrerNodeID uuid.UUID, excludeID *uuid.UUID) (decimal.Decimal, error)
	ListForReferrer(ctx context.Context, db *gorm.DB, referrerNodeID uuid.UUID, offset, limit int) ([]Entry, int64, error)
}
