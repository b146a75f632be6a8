package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront-ledger/internal/bonus/domain"
	payoutdomain "github.com/smallbiznis/storefront-ledger/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO referral_bonuses (id, referrer_node_id, referral_node_id, order_id, level, bonus_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ReferrerNodeID,
		entry.ReferralNodeID,
		entry.OrderID,
		entry.Level,
		entry.BonusAmount,
		entry.CreatedAt,
	).Error
}

func (r *repo) ExistsForOrder(ctx context.Context, db *gorm.DB, orderID uuid.UUID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM referral_bonuses WHERE order_id = ?`,
		orderID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListActiveByOrder(ctx context.Context, db *gorm.DB, orderID uuid.UUID) ([]domain.Entry, error) {
	var entries []domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT b.id, b.referrer_node_id, b.referral_node_id, b.order_id, b.level, b.bonus_amount,
		        b.created_at, b.reverted_at, n.user_id AS referrer_user_id
		 FROM referral_bonuses b
		 JOIN referral_nodes n ON n.id = b.referrer_node_id
		 WHERE b.order_id = ? AND b.reverted_at IS NULL
		 ORDER BY b.level ASC`,
		orderID,
	).Scan(&entries).Error
	return entries, err
}

func (r *repo) MarkReverted(ctx context.Context, db *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE referral_bonuses SET reverted_at = ? WHERE id = ? AND reverted_at IS NULL`,
		now, id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) SumForReferrer(ctx context.Context, db *gorm.DB, referrerNodeID uuid.UUID) (decimal.Decimal, error) {
	return sum(ctx, db,
		`SELECT SUM(bonus_amount) AS total FROM referral_bonuses
		 WHERE referrer_node_id = ? AND reverted_at IS NULL`,
		referrerNodeID,
	)
}

func (r *repo) SumForReferral(ctx context.Context, db *gorm.DB, referralNodeID uuid.UUID) (decimal.Decimal, error) {
	return sum(ctx, db,
		`SELECT SUM(bonus_amount) AS total FROM referral_bonuses
		 WHERE referral_node_id = ? AND reverted_at IS NULL`,
		referralNodeID,
	)
}

func (r *repo) SumMatured(ctx context.Context, db *gorm.DB, referrerNodeID uuid.UUID, maturedBefore time.Time) (decimal.Decimal, error) {
	return sum(ctx, db,
		`SELECT SUM(bonus_amount) AS total FROM referral_bonuses
		 WHERE referrer_node_id = ? AND reverted_at IS NULL AND created_at <= ?`,
		referrerNodeID, maturedBefore,
	)
}

func (r *repo) SumReserved(ctx context.Context, db *gorm.DB, referrerNodeID uuid.UUID, excludeID *uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT SUM(amount) AS total FROM payout_requests
		 WHERE referrer_node_id = ? AND status = ?`
	args := []any{referrerNodeID, payoutdomain.StatusPending}
	if excludeID != nil {
		query += ` AND id <> ?`
		args = append(args, *excludeID)
	}
	return sum(ctx, db, query, args...)
}

func (r *repo) ListForReferrer(ctx context.Context, db *gorm.DB, referrerNodeID uuid.UUID, offset, limit int) ([]domain.Entry, int64, error) {
	var total int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM referral_bonuses WHERE referrer_node_id = ?`,
		referrerNodeID,
	).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, referrer_node_id, referral_node_id, order_id, level, bonus_amount, created_at, reverted_at
		 FROM referral_bonuses
		 WHERE referrer_node_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		referrerNodeID, limit, offset,
	).Scan(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func sum(ctx context.Context, db *gorm.DB, query string, args ...any) (decimal.Decimal, error) {
	var row struct {
		Total decimal.NullDecimal
	}
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	if !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal.Round(2), nil
}
