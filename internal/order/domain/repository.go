package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Order, error)
	// SumPaidSince totals the user's paid orders created at or after since.
	SumPaidSince(ctx context.Context, db *gorm.DB, userID uuid.UUID, since time.Time) (decimal.Decimal, error)
	// HasPaidInRange reports a paid order created in [from, to).
	HasPaidInRange(ctx context.Context, db *gorm.DB, userID uuid.UUID, from, to time.Time) (bool, error)
	CountPaidSince(ctx context.Context, db *gorm.DB, userID uuid.UUID, since time.Time) (int64, error)
	// CountPaidSinceByUsers returns paid order counts keyed by user id.
	CountPaidSinceByUsers(ctx context.Context, db *gorm.DB, userIDs []uuid.UUID, since time.Time) (map[uuid.UUID]int64, error)
}
