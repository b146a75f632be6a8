package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront-ledger/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Order, error) {
	var orders []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, status, total, created_at, updated_at FROM orders WHERE id = ?`,
		id,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (r *repo) SumPaidSince(ctx context.Context, db *gorm.DB, userID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var row struct {
		Total decimal.NullDecimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT SUM(total) AS total FROM orders
		 WHERE user_id = ? AND status = ? AND created_at >= ?`,
		userID, domain.StatusPaid, since,
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal.Round(2), nil
}

func (r *repo) HasPaidInRange(ctx context.Context, db *gorm.DB, userID uuid.UUID, from, to time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM orders
		 WHERE user_id = ? AND status = ? AND created_at >= ? AND created_at < ?`,
		userID, domain.StatusPaid, from, to,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) CountPaidSince(ctx context.Context, db *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM orders WHERE user_id = ? AND status = ? AND created_at >= ?`,
		userID, domain.StatusPaid, since,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountPaidSinceByUsers(ctx context.Context, db *gorm.DB, userIDs []uuid.UUID, since time.Time) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		UserID uuid.UUID
		Orders int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, COUNT(1) AS orders FROM orders
		 WHERE user_id IN ? AND status = ? AND created_at >= ?
		 GROUP BY user_id`,
		userIDs, domain.StatusPaid, since,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.UserID] = row.Orders
	}
	return counts, nil
}
